package snapshots

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:snapshots?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
DELETE FROM snapshots;
`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRepository_GetMissingReturnsNil(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))

	v, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSQLiteRepository_SetOverwritesWholeKey(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "state", []byte(`{"v":1}`)))
	require.NoError(t, repo.Set(ctx, "state", []byte(`{"v":2}`)))

	v, err := repo.Get(ctx, "state")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(v))
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "state", []byte(`{}`)))
	require.NoError(t, repo.Delete(ctx, "state"))

	v, err := repo.Get(ctx, "state")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMemoryRepository_RoundTripAndIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	in := []byte(`{"a":1}`)
	require.NoError(t, repo.Set(ctx, "k", in))
	in[0] = 'X' // caller mutation must not leak into the stored copy

	v, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(v))
}
