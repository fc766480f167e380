package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("errorwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations twice; the second run must be a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// backends returns each Backend implementation under test. Postgres is skipped in -short mode.
func backends(t *testing.T) map[string]func(t *testing.T) store.Backend {
	t.Helper()
	return map[string]func(t *testing.T) store.Backend{
		"memory": func(t *testing.T) store.Backend { return store.NewMemoryBackend() },
		"postgres": func(t *testing.T) store.Backend {
			if testing.Short() {
				t.Skip("skipping integration test")
			}
			return store.NewPostgresBackend(setupTestDB(t))
		},
	}
}

func rec(dataType, id string, attrs string, create int64) store.Record {
	return store.Record{
		ID:         id,
		DataType:   dataType,
		Attributes: json.RawMessage(attrs),
		Create:     create,
		Update:     create,
	}
}

func TestBackend_PutAndGet(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			require.NoError(t, b.Ping(ctx))
			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "e1", `{"message":"boom"}`, 1000)))

			got, err := b.Get(ctx, "ErrorNotification", "e1")
			require.NoError(t, err)
			assert.Equal(t, "e1", got.ID)
			assert.Equal(t, "ErrorNotification", got.DataType)
			assert.Equal(t, int64(1000), got.Create)
			assert.JSONEq(t, `{"message":"boom"}`, string(got.Attributes))
		})
	}
}

func TestBackend_PutDuplicate(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "dup", `{}`, 1)))
			err := b.Put(ctx, rec("ErrorNotification", "dup", `{}`, 2))
			assert.ErrorIs(t, err, store.ErrDuplicateKey)

			// Same id under another data type is a different record.
			require.NoError(t, b.Put(ctx, rec("Admin", "dup", `{}`, 3)))
		})
	}
}

func TestBackend_GetNotFound(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			_, err := b.Get(context.Background(), "ErrorNotification", "missing")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestBackend_ListNewestFirstAndScopedByType(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "a", `{}`, 100)))
			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "b", `{}`, 200)))
			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "c", `{}`, 300)))
			require.NoError(t, b.Put(ctx, rec("Admin", "admin-1", `{}`, 400)))

			recs, err := b.List(ctx, "ErrorNotification")
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Equal(t, "c", recs[0].ID)
			assert.Equal(t, "b", recs[1].ID)
			assert.Equal(t, "a", recs[2].ID)

			empty, err := b.List(ctx, "FeatureInfo")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestBackend_MergeKeepsUntouchedKeys(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "e1", `{"message":"boom","stack":"at x"}`, 100)))

			merged, err := b.Merge(ctx, "ErrorNotification", "e1", json.RawMessage(`{"analyzeResult":"root cause"}`), 250)
			require.NoError(t, err)
			assert.Equal(t, int64(100), merged.Create)
			assert.Equal(t, int64(250), merged.Update)
			assert.JSONEq(t, `{"message":"boom","stack":"at x","analyzeResult":"root cause"}`, string(merged.Attributes))

			got, err := b.Get(ctx, "ErrorNotification", "e1")
			require.NoError(t, err)
			assert.Equal(t, merged.Attributes, got.Attributes)
		})
	}
}

func TestBackend_MergeNotFound(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			_, err := b.Merge(context.Background(), "ErrorNotification", "ghost", json.RawMessage(`{"a":1}`), 1)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestBackend_ListSameMillisecondKeepsInsertionOrder(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			// ids sort opposite to insertion order so an id tiebreak would fail.
			for _, id := range []string{"z", "m", "a"} {
				require.NoError(t, b.Put(ctx, rec("ErrorNotification", id, `{}`, 500)))
			}

			recs, err := b.List(ctx, "ErrorNotification")
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Equal(t, "a", recs[0].ID)
			assert.Equal(t, "m", recs[1].ID)
			assert.Equal(t, "z", recs[2].ID)
		})
	}
}

func TestBackend_MergeAlwaysAdvancesUpdate(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			require.NoError(t, b.Put(ctx, rec("ErrorNotification", "e1", `{}`, 100)))

			first, err := b.Merge(ctx, "ErrorNotification", "e1", json.RawMessage(`{"a":1}`), 100)
			require.NoError(t, err)
			assert.Equal(t, int64(101), first.Update)

			// A clock behind the stored value still moves Update forward.
			second, err := b.Merge(ctx, "ErrorNotification", "e1", json.RawMessage(`{"a":2}`), 50)
			require.NoError(t, err)
			assert.Equal(t, int64(102), second.Update)
			assert.Equal(t, int64(100), second.Create)
		})
	}
}
