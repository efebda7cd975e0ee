package catalogsync

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cassiomorais/possync/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/remote"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const metaLastCatalogSync = "last_catalog_sync"

// Fetcher reads the remote catalog endpoints.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]remote.ProductData, error)
	FetchCategories(ctx context.Context) ([]remote.CategoryData, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

// Progress reports catalog sync phases with running counters.
type Progress struct {
	Phase          string `json:"phase"` // idle, fetching, caching-images, complete, error
	TotalProducts  int    `json:"totalProducts"`
	SyncedProducts int    `json:"syncedProducts"`
	TotalImages    int    `json:"totalImages"`
	CachedImages   int    `json:"cachedImages"`
	Error          string `json:"error,omitempty"`
}

const (
	phaseIdle          = "idle"
	phaseFetching      = "fetching"
	phaseCachingImages = "caching-images"
	phaseComplete      = "complete"
	phaseError         = "error"
)

// SyncResult summarizes a completed catalog sync.
type SyncResult struct {
	ProductsCount   int `json:"productsCount"`
	CategoriesCount int `json:"categoriesCount"`
	ImagesCount     int `json:"imagesCount"`
}

// Stats describes the current cache contents.
type Stats struct {
	ProductsCount   int        `json:"productsCount"`
	CategoriesCount int        `json:"categoriesCount"`
	ImagesCount     int        `json:"imagesCount"`
	LastSyncTime    *time.Time `json:"lastSyncTime,omitempty"`
}

// Service mirrors the remote catalog locally so checkout can run with zero
// connectivity. Refreshes are snapshot-replace: the cached product and
// category collections are cleared and rebuilt from the server response,
// never merged, so deletions on the server propagate on the next sync.
type Service struct {
	products   catalog.ProductRepository
	categories catalog.CategoryRepository
	images     catalog.ImageRepository
	meta       catalog.MetadataRepository
	fetcher    Fetcher
	online     func() bool
	imageCache *ImageCache
	metrics    *observability.Metrics
	logger     zerolog.Logger

	concurrency int64
	syncing     atomic.Bool

	progMu   sync.Mutex
	progress Progress
	subs     map[int]func(Progress)
	nextSub  int
}

// NewService creates a catalog sync service.
func NewService(
	products catalog.ProductRepository,
	categories catalog.CategoryRepository,
	images catalog.ImageRepository,
	meta catalog.MetadataRepository,
	fetcher Fetcher,
	online func() bool,
	imageCache *ImageCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	imageConcurrency int,
) *Service {
	return &Service{
		products:    products,
		categories:  categories,
		images:      images,
		meta:        meta,
		fetcher:     fetcher,
		online:      online,
		imageCache:  imageCache,
		metrics:     metrics,
		logger:      logger.With().Str("component", "catalogsync").Logger(),
		concurrency: int64(imageConcurrency),
		progress:    Progress{Phase: phaseIdle},
		subs:        make(map[int]func(Progress)),
	}
}

// Subscribe registers a progress callback, immediately delivering the current
// progress. The returned function unsubscribes and is safe to call twice.
func (s *Service) Subscribe(fn func(Progress)) func() {
	s.progMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	current := s.progress
	s.progMu.Unlock()

	fn(current)

	return func() {
		s.progMu.Lock()
		delete(s.subs, id)
		s.progMu.Unlock()
	}
}

// InProgress reports whether a catalog sync is currently running.
func (s *Service) InProgress() bool {
	return s.syncing.Load()
}

// GetProgress returns the current progress snapshot.
func (s *Service) GetProgress() Progress {
	s.progMu.Lock()
	defer s.progMu.Unlock()
	return s.progress
}

func (s *Service) updateProgress(mutate func(*Progress)) {
	s.progMu.Lock()
	mutate(&s.progress)
	current := s.progress
	fns := make([]func(Progress), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.progMu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
}

// SyncAll refreshes the whole local catalog: products and categories fetched
// in parallel, snapshot-replaced, then product images downloaded with bounded
// concurrency. Mutually exclusive with itself; fails fast when offline. Any
// fetch or storage error aborts the attempt, but partial image progress is
// kept because repeating the image pass is idempotent.
func (s *Service) SyncAll(ctx context.Context) (*SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil, domainErrors.ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	if s.online != nil && !s.online() {
		return nil, domainErrors.ErrOffline
	}

	s.updateProgress(func(p *Progress) {
		*p = Progress{Phase: phaseFetching}
	})

	var (
		productData  []remote.ProductData
		categoryData []remote.CategoryData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		productData, err = s.fetcher.FetchProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categoryData, err = s.fetcher.FetchCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(err)
	}

	now := time.Now()
	products := make([]*catalog.Product, len(productData))
	for i, p := range productData {
		products[i] = &catalog.Product{
			ID:           p.ID,
			Name:         p.Name,
			SKU:          p.SKU,
			Barcode:      p.Barcode,
			UnitPrice:    p.UnitPrice,
			MarkedPrice:  p.MarkedPrice,
			CurrentStock: p.CurrentStock,
			ReorderLevel: p.ReorderLevel,
			Unit:         p.Unit,
			CategoryID:   p.CategoryID,
			CategoryName: p.Category,
			GSTRate:      p.GSTRate,
			ImageURL:     p.ImageURL,
			UpdatedAt:    now,
		}
	}
	categories := make([]*catalog.Category, len(categoryData))
	for i, c := range categoryData {
		categories[i] = &catalog.Category{
			ID:           c.ID,
			Name:         c.Name,
			ProductCount: c.ProductCount,
			UpdatedAt:    now,
		}
	}

	s.updateProgress(func(p *Progress) {
		p.TotalProducts = len(products)
	})

	if err := s.products.ReplaceAll(ctx, products); err != nil {
		return nil, s.fail(err)
	}
	if err := s.categories.ReplaceAll(ctx, categories); err != nil {
		return nil, s.fail(err)
	}

	s.updateProgress(func(p *Progress) {
		p.SyncedProducts = len(products)
		p.Phase = phaseCachingImages
	})

	cachedIDs, err := s.cacheImages(ctx, products)
	if err != nil {
		return nil, s.fail(err)
	}

	if err := s.products.MarkLocalImages(ctx, cachedIDs); err != nil {
		return nil, s.fail(err)
	}
	if err := s.meta.Set(ctx, metaLastCatalogSync, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return nil, s.fail(err)
	}

	s.updateProgress(func(p *Progress) {
		p.Phase = phaseComplete
	})
	s.metrics.CatalogSyncs.WithLabelValues("success").Inc()
	s.metrics.CatalogProducts.Set(float64(len(products)))
	s.logger.Info().
		Int("products", len(products)).
		Int("categories", len(categories)).
		Int("images", len(cachedIDs)).
		Msg("Catalog sync complete")

	return &SyncResult{
		ProductsCount:   len(products),
		CategoriesCount: len(categories),
		ImagesCount:     len(cachedIDs),
	}, nil
}

// cacheImages downloads images for products that reference one, at most
// s.concurrency in flight. Individual image failures are logged and skipped;
// the blob overwrite on re-sync makes repeats safe.
func (s *Service) cacheImages(ctx context.Context, products []*catalog.Product) ([]string, error) {
	var withImages []*catalog.Product
	for _, p := range products {
		if p.ImageURL != "" {
			withImages = append(withImages, p)
		}
	}

	s.updateProgress(func(p *Progress) {
		p.TotalImages = len(withImages)
	})

	sem := semaphore.NewWeighted(s.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var cachedIDs []string

	for _, p := range withImages {
		p := p
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			data, mime, err := s.fetcher.FetchImage(gctx, p.ImageURL)
			if err != nil {
				s.logger.Warn().Err(err).Str("productId", p.ID).Msg("Failed to fetch product image")
				return nil
			}
			img := &catalog.ProductImage{
				ProductID: p.ID,
				Data:      data,
				MimeType:  mime,
				CachedAt:  time.Now(),
			}
			if err := s.images.Put(gctx, img); err != nil {
				s.logger.Warn().Err(err).Str("productId", p.ID).Msg("Failed to store product image")
				return nil
			}

			mu.Lock()
			cachedIDs = append(cachedIDs, p.ID)
			mu.Unlock()

			s.metrics.CatalogImagesCached.Inc()
			s.updateProgress(func(prog *Progress) {
				prog.CachedImages++
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return cachedIDs, err
	}
	return cachedIDs, ctx.Err()
}

func (s *Service) fail(err error) error {
	s.metrics.CatalogSyncs.WithLabelValues("error").Inc()
	s.logger.Error().Err(err).Msg("Catalog sync failed")
	s.updateProgress(func(p *Progress) {
		p.Phase = phaseError
		p.Error = err.Error()
	})
	return err
}

// GetProducts reads the cached mirror: case-insensitive substring search over
// name, sku and barcode, optional category filter, in-stock items first and
// then alphabetical. Works fully offline.
func (s *Service) GetProducts(ctx context.Context, filter catalog.Filter) ([]*catalog.Product, error) {
	return s.products.List(ctx, filter)
}

// GetCategories reads the cached category mirror.
func (s *Service) GetCategories(ctx context.Context) ([]*catalog.Category, error) {
	return s.categories.List(ctx)
}

// CachedImagePath returns a displayable local path for a product's cached
// image, memoized per process.
func (s *Service) CachedImagePath(ctx context.Context, productID string) (string, error) {
	return s.imageCache.Path(ctx, productID)
}

// ReleaseImage releases the materialized image handle for one product.
func (s *Service) ReleaseImage(productID string) {
	s.imageCache.Release(productID)
}

// ReleaseAllImages releases every materialized image handle.
func (s *Service) ReleaseAllImages() {
	s.imageCache.ReleaseAll()
}

// LastSyncTime returns the last successful catalog sync time, or nil if the
// catalog has never been synced.
func (s *Service) LastSyncTime(ctx context.Context) (*time.Time, error) {
	raw, err := s.meta.Get(ctx, metaLastCatalogSync)
	if err != nil || raw == "" {
		return nil, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil // unreadable stamp reads as never-synced
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// HasCachedData reports whether any products are cached locally.
func (s *Service) HasCachedData(ctx context.Context) (bool, error) {
	n, err := s.products.Count(ctx)
	return n > 0, err
}

// Stats returns cache statistics for the control API.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	productCount, err := s.products.Count(ctx)
	if err != nil {
		return nil, err
	}
	categoryCount, err := s.categories.Count(ctx)
	if err != nil {
		return nil, err
	}
	imageCount, err := s.images.Count(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := s.LastSyncTime(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ProductsCount:   productCount,
		CategoriesCount: categoryCount,
		ImagesCount:     imageCount,
		LastSyncTime:    lastSync,
	}, nil
}

// ClearCache removes all cached catalog data and released image handles.
// Destructive; only invoked from an explicit user action.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.products.Clear(ctx); err != nil {
		return err
	}
	if err := s.categories.Clear(ctx); err != nil {
		return err
	}
	if err := s.images.Clear(ctx); err != nil {
		return err
	}
	s.imageCache.ReleaseAll()
	s.updateProgress(func(p *Progress) {
		*p = Progress{Phase: phaseIdle}
	})
	return nil
}
