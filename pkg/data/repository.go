package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository defines the interface for round-history persistence
type Repository interface {
	// Round operations
	SaveRound(ctx context.Context, record *RoundRecord) error
	GetRound(ctx context.Context, id string) (*RoundRecord, error)
	ListRounds(ctx context.Context, filter RoundFilter) ([]*RoundRecord, error)

	// Provider snapshot operations
	SaveProviderRecord(ctx context.Context, record *ProviderRecord) error
	ListProviderRecords(ctx context.Context, name string, limit int) ([]*ProviderRecord, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository instance
func NewPostgresRepository(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return repo, nil
}

// Close releases all database resources
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

// SaveRound persists a round record
func (r *PostgresRepository) SaveRound(ctx context.Context, record *RoundRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	valueJSON, err := json.Marshal(record.Value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	failuresJSON, err := json.Marshal(record.Failures)
	if err != nil {
		return fmt.Errorf("encoding failures: %w", err)
	}
	qualityJSON, err := json.Marshal(record.Quality)
	if err != nil {
		return fmt.Errorf("encoding quality metrics: %w", err)
	}

	query := `
		INSERT INTO rounds (
			id, data_type, subject, value, confidence, method,
			sources, outliers, failures, quality, succeeded,
			completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.pool.Exec(ctx, query,
		record.ID, record.DataType, record.Subject, valueJSON,
		record.Confidence, record.Method, record.Sources, record.Outliers,
		failuresJSON, qualityJSON, record.Succeeded,
		record.CompletedAt, record.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("%w: round %s", ErrDuplicate, record.ID)
		}
		return fmt.Errorf("inserting round: %w", err)
	}

	return nil
}

// GetRound retrieves a round record by ID
func (r *PostgresRepository) GetRound(ctx context.Context, id string) (*RoundRecord, error) {
	query := `
		SELECT id, data_type, subject, value, confidence, method,
		       sources, outliers, failures, quality, succeeded,
		       completed_at, created_at
		FROM rounds
		WHERE id = $1`

	record, err := scanRound(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying round: %w", err)
	}
	return record, nil
}

// ListRounds retrieves round records matching the filter, newest first
func (r *PostgresRepository) ListRounds(ctx context.Context, filter RoundFilter) ([]*RoundRecord, error) {
	query := `
		SELECT id, data_type, subject, value, confidence, method,
		       sources, outliers, failures, quality, succeeded,
		       completed_at, created_at
		FROM rounds
		WHERE 1=1`
	args := []interface{}{}
	argc := 0

	if filter.DataType != "" {
		argc++
		query += fmt.Sprintf(" AND data_type = $%d", argc)
		args = append(args, filter.DataType)
	}
	if filter.Subject != "" {
		argc++
		query += fmt.Sprintf(" AND subject = $%d", argc)
		args = append(args, filter.Subject)
	}
	if filter.Succeeded != nil {
		argc++
		query += fmt.Sprintf(" AND succeeded = $%d", argc)
		args = append(args, *filter.Succeeded)
	}
	if filter.FromTime != nil {
		argc++
		query += fmt.Sprintf(" AND completed_at >= $%d", argc)
		args = append(args, *filter.FromTime)
	}
	if filter.ToTime != nil {
		argc++
		query += fmt.Sprintf(" AND completed_at <= $%d", argc)
		args = append(args, *filter.ToTime)
	}

	query += " ORDER BY completed_at DESC"
	if filter.Limit > 0 {
		argc++
		query += fmt.Sprintf(" LIMIT $%d", argc)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		argc++
		query += fmt.Sprintf(" OFFSET $%d", argc)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rounds: %w", err)
	}
	defer rows.Close()

	var records []*RoundRecord
	for rows.Next() {
		record, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SaveProviderRecord persists a provider snapshot
func (r *PostgresRepository) SaveProviderRecord(ctx context.Context, record *ProviderRecord) error {
	weightsJSON, err := json.Marshal(record.Weights)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	query := `
		INSERT INTO provider_snapshots (
			id, name, status, weights, total_requests,
			successful_requests, avg_response_time_ms, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, query,
		record.ID, record.Name, record.Status, weightsJSON,
		record.Requests, record.Successes, record.AvgLatency, record.CapturedAt)
	if err != nil {
		return fmt.Errorf("inserting provider snapshot: %w", err)
	}
	return nil
}

// ListProviderRecords retrieves the most recent snapshots for a provider
func (r *PostgresRepository) ListProviderRecords(ctx context.Context, name string, limit int) ([]*ProviderRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, name, status, weights, total_requests,
		       successful_requests, avg_response_time_ms, captured_at
		FROM provider_snapshots
		WHERE name = $1
		ORDER BY captured_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying provider snapshots: %w", err)
	}
	defer rows.Close()

	var records []*ProviderRecord
	for rows.Next() {
		record := &ProviderRecord{}
		var weightsJSON []byte
		err := rows.Scan(&record.ID, &record.Name, &record.Status, &weightsJSON,
			&record.Requests, &record.Successes, &record.AvgLatency, &record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning provider snapshot: %w", err)
		}
		if err := json.Unmarshal(weightsJSON, &record.Weights); err != nil {
			return nil, fmt.Errorf("decoding weights: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRound(row pgx.Row) (*RoundRecord, error) {
	record := &RoundRecord{}
	var valueJSON, failuresJSON, qualityJSON []byte

	err := row.Scan(&record.ID, &record.DataType, &record.Subject, &valueJSON,
		&record.Confidence, &record.Method, &record.Sources, &record.Outliers,
		&failuresJSON, &qualityJSON, &record.Succeeded,
		&record.CompletedAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(valueJSON, &record.Value); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	if err := json.Unmarshal(failuresJSON, &record.Failures); err != nil {
		return nil, fmt.Errorf("decoding failures: %w", err)
	}
	if err := json.Unmarshal(qualityJSON, &record.Quality); err != nil {
		return nil, fmt.Errorf("decoding quality metrics: %w", err)
	}

	return record, nil
}
