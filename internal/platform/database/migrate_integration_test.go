//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mintgate/internal/platform/config"
	"mintgate/internal/platform/database"
	"mintgate/migrations"
	"mintgate/pkg/testutil/containers"
)

type MigrateSuite struct {
	suite.Suite
	pg *containers.PostgresContainer
}

func TestMigrateSuite(t *testing.T) {
	suite.Run(t, new(MigrateSuite))
}

func (s *MigrateSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
}

func (s *MigrateSuite) TestRerunIsNoop() {
	ctx := context.Background()

	ran, err := database.Migrate(ctx, s.pg.DB, migrations.FS)
	s.Require().NoError(err)
	s.Empty(ran)

	var version string
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx,
		"SELECT version FROM schema_migrations ORDER BY version LIMIT 1").Scan(&version))
	s.Equal("000001_mint", version)
}

func (s *MigrateSuite) TestPoolFromConfig() {
	ctx := context.Background()

	pool, err := database.New(ctx, config.DatabaseConfig{
		URL:             s.pg.DSN,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	s.Require().NoError(err)
	s.Require().NotNil(pool)
	defer pool.Close()

	s.NoError(pool.Health(ctx))
	ran, err := pool.Migrate(ctx, migrations.FS)
	s.Require().NoError(err)
	s.Empty(ran)
}
