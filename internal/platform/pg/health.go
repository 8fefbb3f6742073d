package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jsonrest/pkg/retry"
)

// WaitOptions controls WaitForDB.
type WaitOptions struct {
	// MaxAttempts bounds the pings; 0 waits until ctx is done.
	MaxAttempts int
	Backoff     retry.Policy
	PingTimeout time.Duration
}

// DefaultWaitOptions retries for roughly a minute with exponential backoff.
func DefaultWaitOptions() WaitOptions {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 15 * time.Second
	policy, _ := retry.Exponential(cfg)
	return WaitOptions{MaxAttempts: 8, Backoff: policy, PingTimeout: 5 * time.Second}
}

// WaitForDB pings dsn until it answers, the attempts run out or ctx is done.
// It is used at startup when the journal database starts alongside the
// prober.
func WaitForDB(ctx context.Context, dsn string, opts WaitOptions) error {
	return waitFor(ctx, opts, func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	})
}

func waitFor(ctx context.Context, opts WaitOptions, ping func(context.Context) error) error {
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.Constant(time.Second)
	}
	for attempt := 1; ; attempt++ {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
		}
		if werr := retry.Wait(ctx, backoff.Delay(attempt)); werr != nil {
			return fmt.Errorf("context cancelled after %d attempts: %w", attempt, werr)
		}
	}
}

// HealthCheckPool pings pool and runs a trivial query.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
