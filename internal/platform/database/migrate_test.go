package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate/internal/platform/config"
	"mintgate/migrations"
)

func TestUpFilesOrdersForwardMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_phase_index.up.sql":   {Data: []byte("SELECT 2")},
		"000001_mint.up.sql":          {Data: []byte("SELECT 1")},
		"000001_mint.down.sql":        {Data: []byte("DROP TABLE mints")},
		"embed.go":                    {Data: []byte("package migrations")},
		"archive/000000_old.up.sql":   {Data: []byte("SELECT 0")},
		"000010_late_backfill.up.sql": {Data: []byte("SELECT 10")},
	}

	files, err := upFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"000001_mint.up.sql",
		"000002_phase_index.up.sql",
		"000010_late_backfill.up.sql",
	}, files)
}

func TestEmbeddedMigrationsHaveForwardFiles(t *testing.T) {
	files, err := upFiles(migrations.FS)
	require.NoError(t, err)
	assert.Contains(t, files, "000001_mint.up.sql")
}

func TestNilPool(t *testing.T) {
	pool, err := New(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)

	assert.ErrorIs(t, pool.Health(context.Background()), ErrNotConfigured)
	_, err = pool.Migrate(context.Background(), migrations.FS)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, pool.Close())
}
