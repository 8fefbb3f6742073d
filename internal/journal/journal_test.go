package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonrest/internal/shared"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Target: "api", Path: "/v1/ping", Status: 200, Up: true, Attempts: 1, Latency: 12 * time.Millisecond, CheckedAt: base},
		{Target: "api", Path: "/v1/ping", Status: 503, Attempts: 3, Latency: 40 * time.Millisecond, CheckedAt: base.Add(time.Minute)},
		{Target: "auth", Path: "/auth/health", Attempts: 2, Kind: "ConnRefused", Error: "connection refused", RequestID: "rid-1", CheckedAt: base.Add(30 * time.Second)},
	}
	for _, e := range entries {
		id, err := s.Record(ctx, e)
		require.NoError(t, err)
		require.Positive(t, id)
	}

	recent, err := s.Recent(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 503, recent[0].Status)
	assert.False(t, recent[0].Up)
	assert.Equal(t, 3, recent[0].Attempts)
	assert.Equal(t, 40*time.Millisecond, recent[0].Latency)
	assert.True(t, recent[0].CheckedAt.Equal(base.Add(time.Minute)))
	assert.True(t, recent[1].Up)

	limited, err := s.Recent(ctx, "api", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := s.Recent(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "api", latest[0].Target)
	assert.Equal(t, 503, latest[0].Status)
	assert.Equal(t, "auth", latest[1].Target)
	assert.Equal(t, "ConnRefused", latest[1].Kind)
	assert.Equal(t, "rid-1", latest[1].RequestID)
	assert.Zero(t, latest[1].Status)
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openTestStore(t))
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Target: "a", Path: "/", Status: 204, Up: true, CheckedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("JOURNAL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("JOURNAL_TEST_PG_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_PingAfterClose(t *testing.T) {
	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://user:secret@db:3306/journal")
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.NotContains(t, err.Error(), "secret")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultRecent, clampLimit(0))
	assert.Equal(t, defaultRecent, clampLimit(-1))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, 500, clampLimit(10_000))
}
