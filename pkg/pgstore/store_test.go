package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates/pkg/pg"
	"github.com/dmitrymomot/metastates/pkg/pgstore"
	"github.com/dmitrymomot/metastates/pkg/states"
	"github.com/dmitrymomot/metastates/pkg/statestest"
)

func TestStore(t *testing.T) {
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     10,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "metastates_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, slog.New(slog.DiscardHandler)))
	require.NoError(t, pg.Healthcheck(pool)(ctx))

	statestest.RunStoreContract(t, func(t *testing.T) states.Store {
		_, err := pool.Exec(ctx, `TRUNCATE metastates_states`)
		require.NoError(t, err)
		return pgstore.New(pool)
	})
}
