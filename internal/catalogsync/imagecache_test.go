package catalogsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cassiomorais/possync/internal/config"
	"github.com/cassiomorais/possync/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImageCache(t *testing.T) (*ImageCache, *sqlite.ImageRepository) {
	t.Helper()

	store := sqlite.New(config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "images_test.db"),
		BusyTimeout: 5 * time.Second,
	}, zerolog.Nop())
	t.Cleanup(func() { store.Close() })

	images := sqlite.NewImageRepository(store)
	return NewImageCache(images, filepath.Join(t.TempDir(), "img")), images
}

func TestImageCache_PathMaterializesBlob(t *testing.T) {
	cache, images := newTestImageCache(t)
	ctx := context.Background()

	require.NoError(t, images.Put(ctx, &catalog.ProductImage{
		ProductID: "p1", Data: []byte("pngbytes"), MimeType: "image/png", CachedAt: time.Now(),
	}))

	path, err := cache.Path(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), data)
}

func TestImageCache_PathIsMemoized(t *testing.T) {
	cache, images := newTestImageCache(t)
	ctx := context.Background()

	require.NoError(t, images.Put(ctx, &catalog.ProductImage{
		ProductID: "p1", Data: []byte("x"), MimeType: "image/jpeg", CachedAt: time.Now(),
	}))

	first, err := cache.Path(ctx, "p1")
	require.NoError(t, err)

	// The blob is gone from the store but the handle survives.
	require.NoError(t, images.Clear(ctx))
	second, err := cache.Path(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestImageCache_PathMissingImage(t *testing.T) {
	cache, _ := newTestImageCache(t)

	_, err := cache.Path(context.Background(), "nope")
	assert.True(t, errors.Is(err, domainErrors.ErrImageNotCached))
}

func TestImageCache_ReleaseRemovesFile(t *testing.T) {
	cache, images := newTestImageCache(t)
	ctx := context.Background()

	require.NoError(t, images.Put(ctx, &catalog.ProductImage{
		ProductID: "p1", Data: []byte("x"), MimeType: "image/jpeg", CachedAt: time.Now(),
	}))

	path, err := cache.Path(ctx, "p1")
	require.NoError(t, err)

	cache.Release("p1")
	cache.Release("p1") // idempotent

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestImageCache_ReleaseAll(t *testing.T) {
	cache, images := newTestImageCache(t)
	ctx := context.Background()

	var paths []string
	for _, id := range []string{"p1", "p2"} {
		require.NoError(t, images.Put(ctx, &catalog.ProductImage{
			ProductID: id, Data: []byte(id), MimeType: "image/webp", CachedAt: time.Now(),
		}))
		path, err := cache.Path(ctx, id)
		require.NoError(t, err)
		paths = append(paths, path)
	}

	cache.ReleaseAll()

	for _, path := range paths {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	}
}
