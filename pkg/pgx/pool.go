package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool describes how to open a connection pool.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	ConnString string          // Used if Config is nil

	// Retry bounds the time spent waiting for the server to accept
	// connections. Zero disables retries.
	Retry  time.Duration
	Logger *zap.Logger
}

// Connect opens a pool and pings the server, retrying with exponential
// backoff until Retry elapses.
func Connect(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	var (
		pool *pgxpool.Pool
		err  error
	)
	switch {
	case cfg.Config != nil:
		pool, err = pgxpool.NewWithConfig(ctx, cfg.Config)
	case cfg.ConnString != "":
		pool, err = pgxpool.New(ctx, cfg.ConnString)
	default:
		return nil, errors.New("pgx: either Config or ConnString must be provided")
	}
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			logger.Warn("postgres not ready", zap.Error(err))
		}
		return err
	}

	if cfg.Retry > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 250 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = cfg.Retry
		err = backoff.Retry(ping, backoff.WithContext(b, ctx))
	} else {
		err = ping()
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}
	return pool, nil
}
