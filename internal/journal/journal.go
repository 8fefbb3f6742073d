// Package journal stores the outcome of every probe check, in SQLite or
// PostgreSQL depending on the DSN.
package journal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"jsonrest/internal/shared"
)

//go:embed migrations
var migrations embed.FS

// ErrNotFound is returned when a target has no recorded check.
var ErrNotFound = errors.New("journal: not found")

// Entry is one recorded check.
type Entry struct {
	ID     int64  `json:"id"`
	Target string `json:"target"`
	Path   string `json:"path"`
	// Status is the HTTP status, 0 when the call failed at the transport.
	Status   int    `json:"status"`
	Up       bool   `json:"up"`
	Attempts int    `json:"attempts"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
	// Latency covers every attempt of the check.
	Latency   time.Duration `json:"latency"`
	RequestID string        `json:"request_id,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e Entry) (int64, error)
	// Recent returns up to limit entries for target, newest first.
	Recent(ctx context.Context, target string, limit int) ([]Entry, error)
	// Latest returns the newest entry of every target, ordered by target.
	Latest(ctx context.Context) ([]Entry, error)
	// Ping checks that the backing database answers queries.
	Ping(ctx context.Context) error
	Close() error
}

// Open picks the backend from the DSN scheme: "sqlite://path" or
// "postgres://..." (also "postgresql://"). The schema is migrated before
// Open returns.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return nil, shared.Wrapf(shared.ErrValidation, "journal dsn: unsupported scheme in %q", redactDSN(dsn))
	}
}

const defaultRecent = 20

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecent
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// redactDSN hides everything between "://" and "@".
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return fmt.Sprintf("%s://***@%s", scheme, rest[at+1:])
	}
	return dsn
}
