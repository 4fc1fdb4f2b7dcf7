// Package storage persists deployment and verification records so every
// broadcast outcome survives the process that produced it.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/shipyard/internal/config"
)

// Deployment is one recorded contract deployment, successful or not.
type Deployment struct {
	ID              string
	Contract        string
	Network         string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	GasUsed         int64
	Status          string // "success", "reverted", "timeout"
	CompilerVersion string
	ConstructorArgs string // hex-encoded ABI arguments
	Verified        bool
	VerifiedAt      string
	VerifyGUID      string
	VerifyDetail    string
	CreatedAt       string
}

// Deployment status values
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
	StatusTimeout  = "timeout"
)

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	Network  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// Store persists deployment records.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	GetDeploymentByAddress(ctx context.Context, network, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	UpdateVerification(ctx context.Context, id string, verified bool, guid, detail string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
