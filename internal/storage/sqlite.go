package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		address TEXT,
		deployer_address TEXT,
		tx_hash TEXT NOT NULL,
		block_number INTEGER,
		gas_used INTEGER,
		status TEXT NOT NULL,
		compiler_version TEXT,
		constructor_args TEXT,
		verified INTEGER DEFAULT 0,
		verified_at TEXT,
		verify_guid TEXT,
		verify_detail TEXT,
		created_at TEXT DEFAULT (datetime('now')),
		UNIQUE(network, tx_hash)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract);
	CREATE INDEX IF NOT EXISTS idx_deployments_address ON deployments(network, address);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// RecordDeployment records a deployment
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, contract, network, chain_id, address, deployer_address, tx_hash, block_number, gas_used, status, compiler_version, constructor_args, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Contract, d.Network, d.ChainID, d.Address, d.DeployerAddress,
		d.TxHash, d.BlockNumber, d.GasUsed, d.Status, d.CompilerVersion, d.ConstructorArgs)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrDuplicate
	}
	return err
}

const deploymentColumns = `id, contract, network, chain_id, address, deployer_address, tx_hash, block_number, gas_used, status, compiler_version, constructor_args, verified, verified_at, verify_guid, verify_detail, created_at`

func scanDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var d Deployment
	var address, deployer, compilerVersion, args, verifiedAt, guid, detail sql.NullString
	var blockNumber, gasUsed sql.NullInt64
	err := row.Scan(
		&d.ID, &d.Contract, &d.Network, &d.ChainID, &address, &deployer,
		&d.TxHash, &blockNumber, &gasUsed, &d.Status, &compilerVersion, &args,
		&d.Verified, &verifiedAt, &guid, &detail, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.BlockNumber = blockNumber.Int64
	d.GasUsed = gasUsed.Int64
	d.Address = address.String
	d.DeployerAddress = deployer.String
	d.CompilerVersion = compilerVersion.String
	d.ConstructorArgs = args.String
	d.VerifiedAt = verifiedAt.String
	d.VerifyGUID = guid.String
	d.VerifyDetail = detail.String
	return &d, nil
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDeploymentByAddress retrieves the most recent deployment at an address
func (s *SQLiteStore) GetDeploymentByAddress(ctx context.Context, network, address string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE network = ? AND address = ? ORDER BY created_at DESC LIMIT 1`,
		network, address)
	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments with filtering and cursor-based pagination
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	if pagination.Limit <= 0 {
		pagination.Limit = 50
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	var conds []string
	var args []any

	if filter.Network != "" {
		conds = append(conds, "network = ?")
		args = append(args, filter.Network)
	}
	if filter.Contract != "" {
		conds = append(conds, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.Verified != nil {
		conds = append(conds, "verified = ?")
		args = append(args, *filter.Verified)
	}
	if pagination.Cursor != "" {
		createdAt, id, ok := decodeCursor(pagination.Cursor)
		if !ok {
			return nil, fmt.Errorf("malformed cursor %q", pagination.Cursor)
		}
		conds = append(conds, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, createdAt, createdAt, id)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, pagination.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}

	hasMore := len(deployments) > pagination.Limit
	var nextCursor string
	if hasMore {
		deployments = deployments[:pagination.Limit]
	}
	if hasMore && len(deployments) > 0 {
		last := deployments[len(deployments)-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return &PaginatedResult[Deployment]{
		Data:       deployments,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

// UpdateVerification updates a deployment's verification status
func (s *SQLiteStore) UpdateVerification(ctx context.Context, id string, verified bool, guid, detail string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET verified = ?, verified_at = datetime('now'), verify_guid = ?, verify_detail = ? WHERE id = ?",
		verified, guid, detail, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
