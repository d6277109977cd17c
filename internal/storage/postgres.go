// Package storage provides the asset/holdings store, the run lock and the
// reserve history sink.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reserve-snapshot/internal/config"
	"github.com/reserve-snapshot/internal/errors"
)

// Querier is the read surface repositories need; *pgxpool.Pool satisfies it
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens the pool and confirms the store answers.
// Failures are connection errors.
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Errorf("unable to parse connection string: %w", err))
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is small and set from config
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 4
	}
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	return OpenPostgresDB(ctx, poolConfig)
}

// OpenPostgresDB opens a pool from a parsed config
func OpenPostgresDB(ctx context.Context, poolConfig *pgxpool.Config) (*PostgresDB, error) {
	target := fmt.Sprintf("postgres %s:%d/%s", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, poolConfig.ConnConfig.Database)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, errors.NewConnectionError(target, fmt.Errorf("unable to create connection pool: %w", err))
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, errors.NewConnectionError(target, fmt.Errorf("unable to ping database: %w", err))
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
