// Package domain contains the business logic for deployment records.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pendergraft/shipyard/internal/storage"
	"github.com/pendergraft/shipyard/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrDuplicate      = errors.New("deployment already recorded")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidTxHash  = errors.New("invalid transaction hash")
	ErrInvalidStatus  = errors.New("invalid deployment status")
)

// Store is the minimal persistence surface the service needs.
type Store interface {
	RecordDeployment(ctx context.Context, d *storage.Deployment) error
	GetDeployment(ctx context.Context, id string) (*storage.Deployment, error)
	GetDeploymentByAddress(ctx context.Context, network, address string) (*storage.Deployment, error)
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error)
	UpdateVerification(ctx context.Context, id string, verified bool, guid, detail string) error
}

// Service defines the deployment record service interface.
type Service interface {
	// Record validates and persists a deployment outcome.
	Record(ctx context.Context, req RecordRequest) (*Deployment, error)

	// Get retrieves a deployment by ID.
	Get(ctx context.Context, id string) (*Deployment, error)

	// GetByAddress retrieves the latest deployment at an address.
	GetByAddress(ctx context.Context, network, address string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// MarkVerified updates the verification outcome of a deployment.
	MarkVerified(ctx context.Context, id string, verified bool, guid, detail string) error
}

type service struct {
	store Store
}

// NewService creates a new deployment record service.
func NewService(store Store) Service {
	return &service{store: store}
}

func (s *service) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	if err := validation.ValidateTxHash(req.TxHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTxHash, err)
	}
	// Reverted and timed-out deployments carry no address
	if req.Address != "" {
		if err := validation.ValidateAddress(req.Address); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
	}
	switch req.Status {
	case storage.StatusSuccess, storage.StatusReverted, storage.StatusTimeout:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	deployment := &storage.Deployment{
		Contract:        req.Contract,
		Network:         req.Network,
		ChainID:         req.ChainID,
		Address:         req.Address,
		DeployerAddress: req.DeployerAddress,
		TxHash:          req.TxHash,
		BlockNumber:     req.BlockNumber,
		GasUsed:         req.GasUsed,
		Status:          req.Status,
		CompilerVersion: req.CompilerVersion,
		ConstructorArgs: req.ConstructorArgs,
	}

	if err := s.store.RecordDeployment(ctx, deployment); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

func (s *service) Get(ctx context.Context, id string) (*Deployment, error) {
	deployment, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(deployment), nil
}

func (s *service) GetByAddress(ctx context.Context, network, address string) (*Deployment, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	deployment, err := s.store.GetDeploymentByAddress(ctx, network, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(deployment), nil
}

func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Network:  filter.Network,
		Contract: filter.Contract,
		Verified: filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i, d := range result.Data {
		deployments[i] = *toDeployment(&d)
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

func (s *service) MarkVerified(ctx context.Context, id string, verified bool, guid, detail string) error {
	if err := s.store.UpdateVerification(ctx, id, verified, guid, detail); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("updating verification status: %w", err)
	}
	return nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	var createdAt time.Time
	if d.CreatedAt != "" {
		// SQLite datetime format; Postgres timestamps parse with RFC3339
		createdAt, _ = time.Parse("2006-01-02 15:04:05", d.CreatedAt)
		if createdAt.IsZero() {
			createdAt, _ = time.Parse(time.RFC3339, d.CreatedAt)
		}
	}
	return &Deployment{
		ID:              d.ID,
		Contract:        d.Contract,
		Network:         d.Network,
		ChainID:         d.ChainID,
		Address:         d.Address,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		GasUsed:         d.GasUsed,
		Status:          d.Status,
		CompilerVersion: d.CompilerVersion,
		Verified:        d.Verified,
		VerifyDetail:    d.VerifyDetail,
		CreatedAt:       createdAt,
	}
}
