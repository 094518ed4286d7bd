package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// ReliableExec acquires a pool connection and runs f with it, retrying with
// exponential backoff until f succeeds, returns a permanent error, or ctx ends.
// Each attempt gets its own tryTimeout.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, tryTimeout time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	logger := zerolog.Ctx(ctx)
	attempt := 0
	op := func() error {
		attempt++
		tryCtx, cancel := context.WithTimeout(ctx, tryTimeout)
		defer cancel()

		conn, err := pool.Acquire(tryCtx)
		if err != nil {
			return fmt.Errorf("error in pool.Acquire: %w", err)
		}
		defer conn.Release()

		err = f(tryCtx, conn)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("reliable exec attempt failed")
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
