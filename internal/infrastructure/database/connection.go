package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
)

// ErrNotConfigured is returned when no database URL is set
var ErrNotConfigured = errors.New("database url is not configured")

// Pool wraps a pgx connection pool with the settings the journal store relies on
type Pool struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// NewPool connects to PostgreSQL and verifies the connection with a ping
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	p := &Pool{logger: logger}
	p.configure(pgxCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p.Pool = pool

	logger.Info("database connection pool created",
		zap.Int32("max_conns", pgxCfg.MaxConns),
		zap.Int32("min_conns", pgxCfg.MinConns),
		zap.String("host", pgxCfg.ConnConfig.Host),
	)
	return p, nil
}

func (p *Pool) configure(c *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		c.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		c.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 && int32(cfg.MaxIdleConns) <= c.MaxConns {
		c.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		c.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		c.MaxConnLifetime = 30 * time.Minute
	}
	c.MaxConnIdleTime = 10 * time.Minute
	c.HealthCheckPeriod = time.Minute
	c.ConnConfig.ConnectTimeout = 5 * time.Second

	if c.ConnConfig.RuntimeParams == nil {
		c.ConnConfig.RuntimeParams = map[string]string{}
	}
	c.ConnConfig.RuntimeParams["application_name"] = "auction_ledger"
	c.ConnConfig.RuntimeParams["timezone"] = "UTC"
	c.ConnConfig.RuntimeParams["statement_timeout"] = "30s"
	c.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "60s"

	c.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		p.logger.Debug("establishing database connection",
			zap.String("host", cc.Host),
			zap.Uint16("port", cc.Port))
		return nil
	}
}

// Transaction runs fn inside a transaction, rolling back on error or panic
func (p *Pool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// Health pings the database within timeout
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		p.logger.Error("database health check failed", zap.Error(err))
		return err
	}
	return nil
}

// Close releases every pooled connection
func (p *Pool) Close() {
	p.Pool.Close()
	p.logger.Info("database connection pool closed")
}
