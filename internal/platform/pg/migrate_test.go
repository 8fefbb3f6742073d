package pg

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrationsFromFS_BadSource(t *testing.T) {
	_, err := ApplyMigrationsFromFS("postgres://u:p@127.0.0.1:9/db?sslmode=disable", fstest.MapFS{}, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iofs")
}

func TestApplyMigrationsFromFS_Integration(t *testing.T) {
	dsn := testDSN(t)
	fsys := fstest.MapFS{
		"m/1_probe_test.up.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS pg_migrate_test (id BIGSERIAL PRIMARY KEY);")},
		"m/1_probe_test.down.sql": {Data: []byte("DROP TABLE IF EXISTS pg_migrate_test;")},
	}

	_, err := ApplyMigrationsFromFS(dsn, fsys, "m")
	require.NoError(t, err)

	info, err := ApplyMigrationsFromFS(dsn, fsys, "m")
	require.NoError(t, err)
	assert.False(t, info.Applied)
	assert.Equal(t, uint(1), info.FinalVersion)
}
