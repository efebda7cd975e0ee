package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cassiomorais/possync/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := New(config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "possync_test.db"),
		BusyTimeout: 5 * time.Second,
	}, zerolog.Nop())
	t.Cleanup(func() { store.Close() })

	// Fail fast if migrations cannot run.
	_, err := store.DB(context.Background())
	require.NoError(t, err)

	return store
}

func TestStore_OpensAndMigrates(t *testing.T) {
	store := newTestStore(t)

	db, err := store.DB(context.Background())
	require.NoError(t, err)

	for _, table := range []string{
		"pending_transactions", "sync_metadata",
		"cached_products", "cached_categories", "product_images",
	} {
		var name string
		err := db.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestStore_DBIsMemoized(t *testing.T) {
	store := newTestStore(t)

	db1, err := store.DB(context.Background())
	require.NoError(t, err)
	db2, err := store.DB(context.Background())
	require.NoError(t, err)
	require.Same(t, db1, db2)
}
