package catalogsync

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cassiomorais/possync/internal/config"
	"github.com/cassiomorais/possync/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/remote"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
	"github.com/cassiomorais/possync/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service  *Service
	products *sqlite.ProductRepository
	images   *sqlite.ImageRepository
	fetcher  *testutil.MockFetcher
	online   *atomic.Bool
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := sqlite.New(config.StoreConfig{
		Path:        filepath.Join(t.TempDir(), "catalog_test.db"),
		BusyTimeout: 5 * time.Second,
	}, zerolog.Nop())
	t.Cleanup(func() { store.Close() })

	products := sqlite.NewProductRepository(store)
	categories := sqlite.NewCategoryRepository(store)
	images := sqlite.NewImageRepository(store)
	meta := testutil.NewMockMetadataRepository()

	fetcher := &testutil.MockFetcher{
		Products: []remote.ProductData{
			{ID: "p1", Name: "Basmati Rice", SKU: "RICE-01", UnitPrice: 120, CurrentStock: 40, CategoryID: "c1", Category: "Grains", ImageURL: "/images/p1.jpg"},
			{ID: "p2", Name: "Almonds", SKU: "NUT-02", UnitPrice: 900, CurrentStock: 0, CategoryID: "c2", Category: "Dry Fruits"},
		},
		Categories: []remote.CategoryData{
			{ID: "c1", Name: "Grains", ProductCount: 1},
			{ID: "c2", Name: "Dry Fruits", ProductCount: 1},
		},
		Images: map[string][]byte{
			"/images/p1.jpg": []byte("jpegbytes"),
		},
	}

	online := &atomic.Bool{}
	online.Store(true)

	service := NewService(
		products, categories, images, meta,
		fetcher,
		online.Load,
		NewImageCache(images, filepath.Join(t.TempDir(), "images")),
		observability.NewMetrics("test", prometheus.NewRegistry()),
		zerolog.Nop(),
		2,
	)

	return &serviceFixture{
		service:  service,
		products: products,
		images:   images,
		fetcher:  fetcher,
		online:   online,
	}
}

func TestSyncAll_PopulatesCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.service.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProductsCount)
	assert.Equal(t, 2, result.CategoriesCount)
	assert.Equal(t, 1, result.ImagesCount)

	products, err := f.service.GetProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Products with a downloaded image are marked.
	p1, err := f.products.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p1.HasLocalImage)
	p2, err := f.products.Get(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, p2.HasLocalImage)

	lastSync, err := f.service.LastSyncTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, lastSync)
	assert.WithinDuration(t, time.Now(), *lastSync, time.Minute)

	has, err := f.service.HasCachedData(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	assert.Equal(t, phaseComplete, f.service.GetProgress().Phase)
}

func TestSyncAll_SnapshotRemovesDeletedProducts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.SyncAll(ctx)
	require.NoError(t, err)

	// Server deleted p2.
	f.fetcher.Products = f.fetcher.Products[:1]

	_, err = f.service.SyncAll(ctx)
	require.NoError(t, err)

	_, err = f.products.Get(ctx, "p2")
	assert.True(t, errors.Is(err, domainErrors.ErrProductNotFound))

	products, err := f.service.GetProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestSyncAll_OfflineFailsFast(t *testing.T) {
	f := newServiceFixture(t)
	f.online.Store(false)

	_, err := f.service.SyncAll(context.Background())
	assert.True(t, errors.Is(err, domainErrors.ErrOffline))

	has, err := f.service.HasCachedData(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSyncAll_FetchFailureAbortsAndKeepsOldCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.SyncAll(ctx)
	require.NoError(t, err)

	f.fetcher.FetchProductsFunc = func(ctx context.Context) ([]remote.ProductData, error) {
		return nil, domainErrors.ErrRemoteUnavailable
	}

	_, err = f.service.SyncAll(ctx)
	require.Error(t, err)
	assert.Equal(t, phaseError, f.service.GetProgress().Phase)

	// The previous snapshot is untouched.
	products, err := f.service.GetProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestSyncAll_IndividualImageFailureIsSkipped(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Both products reference images but only p1's downloads.
	f.fetcher.Products[1].ImageURL = "/images/p2.jpg"
	f.fetcher.FetchImageFunc = func(ctx context.Context, imageURL string) ([]byte, string, error) {
		if imageURL == "/images/p2.jpg" {
			return nil, "", errors.New("status 404")
		}
		return []byte("jpegbytes"), "image/jpeg", nil
	}

	result, err := f.service.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProductsCount)
	assert.Equal(t, 1, result.ImagesCount)

	p2, err := f.products.Get(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, p2.HasLocalImage)
}

func TestSyncAll_RepeatedImagePassIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.SyncAll(ctx)
	require.NoError(t, err)
	_, err = f.service.SyncAll(ctx)
	require.NoError(t, err)

	n, err := f.images.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncAll_MutuallyExclusive(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.FetchProductsFunc = func(ctx context.Context) ([]remote.ProductData, error) {
		close(started)
		<-release
		return f.fetcher.Products, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.service.SyncAll(ctx)
		done <- err
	}()

	<-started
	_, err := f.service.SyncAll(ctx)
	assert.True(t, errors.Is(err, domainErrors.ErrSyncInProgress))

	close(release)
	require.NoError(t, <-done)
}

func TestSubscribe_DeliversProgress(t *testing.T) {
	f := newServiceFixture(t)

	var phases []string
	unsubscribe := f.service.Subscribe(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	})
	defer unsubscribe()

	_, err := f.service.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{phaseIdle, phaseFetching, phaseCachingImages, phaseComplete}, phases)
}

func TestGetProducts_OrdersInStockFirst(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.SyncAll(ctx)
	require.NoError(t, err)

	products, err := f.service.GetProducts(ctx, catalog.Filter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Basmati Rice", products[0].Name) // in stock
	assert.Equal(t, "Almonds", products[1].Name)      // out of stock
}

func TestClearCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.SyncAll(ctx)
	require.NoError(t, err)

	require.NoError(t, f.service.ClearCache(ctx))

	stats, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ProductsCount)
	assert.Zero(t, stats.CategoriesCount)
	assert.Zero(t, stats.ImagesCount)
}
