package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/auction-ledger/internal/infrastructure/config"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/database"
	ledgertest "github.com/davidleathers/auction-ledger/internal/testutil"
	"github.com/davidleathers/auction-ledger/internal/testutil/containers"
)

func TestNewPoolConfigErrors(t *testing.T) {
	ctx := context.Background()
	logger := ledgertest.TestLogger(t)

	_, err := database.NewPool(ctx, config.DatabaseConfig{}, logger)
	assert.ErrorIs(t, err, database.ErrNotConfigured)

	_, err = database.NewPool(ctx, config.DatabaseConfig{URL: "://not a url"}, logger)
	assert.Error(t, err)

	_, err = database.NewMigrator("", logger)
	assert.ErrorIs(t, err, database.ErrNotConfigured)
}

func setupPool(t *testing.T) *database.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	pg, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close(context.Background()) })

	logger := ledgertest.TestLogger(t)
	require.NoError(t, database.Migrate(pg.ConnectionString, logger))

	pool, err := database.NewPool(ctx, config.DatabaseConfig{
		URL:             pg.ConnectionString,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPool(t *testing.T) {
	pool := setupPool(t)
	ctx := ledgertest.TestContext(t)

	t.Run("configured", func(t *testing.T) {
		assert.Equal(t, int32(4), pool.Config().MaxConns)
		assert.Equal(t, int32(1), pool.Config().MinConns)

		var tz, app string
		require.NoError(t, pool.QueryRow(ctx, "SHOW timezone").Scan(&tz))
		require.NoError(t, pool.QueryRow(ctx, "SHOW application_name").Scan(&app))
		assert.Equal(t, "UTC", tz)
		assert.Equal(t, "auction_ledger", app)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, pool.Health(ctx, time.Second))
	})

	t.Run("transaction commits and rolls back", func(t *testing.T) {
		_, err := pool.Exec(ctx, "CREATE TABLE scratch_tx (n int)")
		require.NoError(t, err)

		require.NoError(t, pool.Transaction(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "INSERT INTO scratch_tx VALUES (1)")
			return err
		}))

		boom := errors.New("boom")
		err = pool.Transaction(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO scratch_tx VALUES (2)"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int
		require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM scratch_tx").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestMonitor(t *testing.T) {
	pool := setupPool(t)
	ctx := ledgertest.TestContext(t)
	monitor := database.NewMonitor(pool, ledgertest.TestLogger(t))

	stats, err := monitor.JournalTableStats(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.TotalSize)
	assert.GreaterOrEqual(t, stats.TotalSize, stats.TableSize)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(monitor))

	count, err := testutil.GatherAndCount(reg,
		"auction_db_pool_max_connections",
		"auction_db_journal_table_bytes",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
