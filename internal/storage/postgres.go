package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contract TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT,
		deployer_address TEXT,
		tx_hash TEXT NOT NULL,
		block_number BIGINT,
		gas_used BIGINT,
		status TEXT NOT NULL,
		compiler_version TEXT,
		constructor_args TEXT,
		verified BOOLEAN DEFAULT FALSE,
		verified_at TIMESTAMPTZ,
		verify_guid TEXT,
		verify_detail TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
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
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, contract, network, chain_id, address, deployer_address, tx_hash, block_number, gas_used, status, compiler_version, constructor_args)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Contract, d.Network, d.ChainID, d.Address, d.DeployerAddress,
		d.TxHash, d.BlockNumber, d.GasUsed, d.Status, d.CompilerVersion, d.ConstructorArgs)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicate
	}
	return err
}

const pgDeploymentColumns = `id, contract, network, chain_id, address, deployer_address, tx_hash, block_number, gas_used, status, compiler_version, constructor_args, verified, COALESCE(verified_at::text, ''), verify_guid, verify_detail, created_at::text`

func (s *PostgresStore) scanDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var d Deployment
	var address, deployer, compilerVersion, args, guid, detail sql.NullString
	var blockNumber, gasUsed sql.NullInt64
	err := row.Scan(
		&d.ID, &d.Contract, &d.Network, &d.ChainID, &address, &deployer,
		&d.TxHash, &blockNumber, &gasUsed, &d.Status, &compilerVersion, &args,
		&d.Verified, &d.VerifiedAt, &guid, &detail, &d.CreatedAt,
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
	d.VerifyGUID = guid.String
	d.VerifyDetail = detail.String
	return &d, nil
}

// GetDeployment retrieves a deployment by ID
func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgDeploymentColumns+` FROM deployments WHERE id = $1`, id)
	d, err := s.scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDeploymentByAddress retrieves the most recent deployment at an address
func (s *PostgresStore) GetDeploymentByAddress(ctx context.Context, network, address string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgDeploymentColumns+` FROM deployments WHERE network = $1 AND address = $2 ORDER BY created_at DESC LIMIT 1`,
		network, address)
	d, err := s.scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments with filtering and cursor-based pagination
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	if pagination.Limit <= 0 {
		pagination.Limit = 50
	}

	query := `SELECT ` + pgDeploymentColumns + ` FROM deployments`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Network != "" {
		conds = append(conds, "network = "+arg(filter.Network))
	}
	if filter.Contract != "" {
		conds = append(conds, "contract = "+arg(filter.Contract))
	}
	if filter.Verified != nil {
		conds = append(conds, "verified = "+arg(*filter.Verified))
	}
	if pagination.Cursor != "" {
		createdAt, id, ok := decodeCursor(pagination.Cursor)
		if !ok {
			return nil, fmt.Errorf("malformed cursor %q", pagination.Cursor)
		}
		ts := arg(createdAt)
		conds = append(conds, fmt.Sprintf(
			"(created_at < %[1]s::timestamptz OR (created_at = %[1]s::timestamptz AND id < %[2]s))",
			ts, arg(id)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(pagination.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := s.scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}

	hasMore := len(deployments) > pagination.Limit
	var nextCursor string
	if hasMore {
		deployments = deployments[:pagination.Limit]
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
func (s *PostgresStore) UpdateVerification(ctx context.Context, id string, verified bool, guid, detail string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET verified = $1, verified_at = NOW(), verify_guid = $2, verify_detail = $3 WHERE id = $4",
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
