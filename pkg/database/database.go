package database

import (
	"context"
	"fmt"
	"time"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cfg "github.com/sand/forex-wallet-app/backend/config"
)

const defaultConnAttempts = 3

// Postgres wraps the connection pool together with the transactor used
// to compose repository calls into one database transaction.
type Postgres struct {
	Pool       *pgxpool.Pool
	DBGetter   tx.DBGetter
	Transactor *tx.Transactor
}

// Option configures the pool before it is created.
type Option func(*pgxpool.Config)

// MaxPoolSize caps the number of pooled connections.
func MaxPoolSize(size int32) Option {
	return func(c *pgxpool.Config) {
		c.MaxConns = size
	}
}

// ConnTimeout sets the per-connection dial timeout in seconds.
func ConnTimeout(seconds int) Option {
	return func(c *pgxpool.Config) {
		c.ConnConfig.ConnectTimeout = time.Duration(seconds) * time.Second
	}
}

// HealthCheckPeriod sets how often idle connections are checked, in minutes.
func HealthCheckPeriod(minutes int) Option {
	return func(c *pgxpool.Config) {
		c.HealthCheckPeriod = time.Duration(minutes) * time.Minute
	}
}

// Isolation pins the default transaction isolation level for every
// connection in the pool.
func Isolation(level pgx.TxIsoLevel) Option {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["default_transaction_isolation"] = string(level)
	}
}

// New connects to PostgreSQL and wires the transactor around the pool.
func New(config *cfg.Config, opts ...Option) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DB.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	for _, opt := range opts {
		opt(poolConfig)
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= defaultConnAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err == nil {
			err = pool.Ping(context.Background())
		}
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	transactor, dbGetter := tx.NewTransactorFromPool(pool)

	return &Postgres{
		Pool:       pool,
		DBGetter:   dbGetter,
		Transactor: transactor,
	}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
