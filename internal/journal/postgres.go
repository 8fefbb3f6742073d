package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jsonrest/internal/platform/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres waits for the database, migrates it and opens a pool.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	if err := pg.WaitForDB(ctx, dsn, pg.DefaultWaitOptions()); err != nil {
		return nil, err
	}
	if _, err := pg.ApplyMigrationsFromFS(dsn, migrations, "migrations/postgres"); err != nil {
		return nil, err
	}
	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Record(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO checks (target, path, status, up, attempts, kind, error, latency_ms, request_id, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		e.Target, e.Path, e.Status, e.Up, e.Attempts, e.Kind, e.Error,
		e.Latency.Milliseconds(), e.RequestID, e.CheckedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("journal: record %s: %w", e.Target, err)
	}
	return id, nil
}

type pgRow struct {
	ID        int64     `db:"id"`
	Target    string    `db:"target"`
	Path      string    `db:"path"`
	Status    int       `db:"status"`
	Up        bool      `db:"up"`
	Attempts  int       `db:"attempts"`
	Kind      string    `db:"kind"`
	Error     string    `db:"error"`
	LatencyMS int64     `db:"latency_ms"`
	RequestID string    `db:"request_id"`
	CheckedAt time.Time `db:"checked_at"`
}

func (r pgRow) entry() Entry {
	return Entry{
		ID:        r.ID,
		Target:    r.Target,
		Path:      r.Path,
		Status:    r.Status,
		Up:        r.Up,
		Attempts:  r.Attempts,
		Kind:      r.Kind,
		Error:     r.Error,
		Latency:   time.Duration(r.LatencyMS) * time.Millisecond,
		RequestID: r.RequestID,
		CheckedAt: r.CheckedAt.UTC(),
	}
}

const pgColumns = `id, target, path, status, up, attempts, kind, error, latency_ms, request_id, checked_at`

func (s *pgStore) Recent(ctx context.Context, target string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgColumns+` FROM checks
		WHERE target = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`, target, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("journal: recent %s: %w", target, err)
	}
	return collectPG(rows)
}

func (s *pgStore) Latest(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (target) `+pgColumns+` FROM checks
		ORDER BY target, checked_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal: latest: %w", err)
	}
	return collectPG(rows)
}

func (s *pgStore) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, s.pool)
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func collectPG(rows pgx.Rows) ([]Entry, error) {
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[pgRow])
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(recs))
	for i, r := range recs {
		out[i] = r.entry()
	}
	return out, nil
}
