package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jsonrest/internal/platform/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite migrates and opens the journal file at path.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	db, err := sqlite.NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlite.ApplyMigrationsFromFS(path, migrations, "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Record(ctx context.Context, e Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (target, path, status, up, attempts, kind, error, latency_ms, request_id, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Target, e.Path, e.Status, e.Up, e.Attempts, e.Kind, e.Error,
		e.Latency.Milliseconds(), e.RequestID, e.CheckedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("journal: record %s: %w", e.Target, err)
	}
	return res.LastInsertId()
}

const sqliteColumns = `id, target, path, status, up, attempts, kind, error, latency_ms, request_id, checked_at`

func (s *sqliteStore) Recent(ctx context.Context, target string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+` FROM checks
		WHERE target = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?`, target, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("journal: recent %s: %w", target, err)
	}
	return scanSQLite(rows)
}

func (s *sqliteStore) Latest(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+` FROM checks c
		WHERE c.id = (
			SELECT id FROM checks WHERE target = c.target
			ORDER BY checked_at DESC, id DESC LIMIT 1
		)
		ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("journal: latest: %w", err)
	}
	return scanSQLite(rows)
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM checks LIMIT 1").Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("journal: ping: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func scanSQLite(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			latencyMS int64
			checkedMS int64
		)
		if err := rows.Scan(&e.ID, &e.Target, &e.Path, &e.Status, &e.Up, &e.Attempts,
			&e.Kind, &e.Error, &latencyMS, &e.RequestID, &checkedMS); err != nil {
			return nil, err
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		e.CheckedAt = time.UnixMilli(checkedMS).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
