package controller

import (
	"time"

	"github.com/cassiomorais/possync/internal/catalogsync"
	"github.com/cassiomorais/possync/internal/config"
	"github.com/cassiomorais/possync/internal/connectivity"
	"github.com/cassiomorais/possync/internal/domain/catalog"
	customMW "github.com/cassiomorais/possync/internal/middleware"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/queue"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
	"github.com/cassiomorais/possync/internal/syncengine"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Store      *sqlite.Store
	Queue      *queue.Queue
	Engine     *syncengine.Engine
	Monitor    *connectivity.Monitor
	Catalog    *catalogsync.Service
	Images     catalog.ImageRepository
	Metrics    *observability.Metrics
	CORSConfig config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Store, deps.Monitor)
	txH := NewTransactionController(deps.Queue)
	syncH := NewSyncController(deps.Engine, deps.Monitor)
	catalogH := NewCatalogController(deps.Catalog, deps.Images)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// The event stream stays open indefinitely, so it lives outside the
	// timeout group.
	r.Get("/api/v1/sync/events", syncH.Events)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))

		r.Route("/api/v1", func(r chi.Router) {
			// Transaction queue
			r.Post("/transactions", txH.Enqueue)
			r.Get("/transactions", txH.List)
			r.Get("/transactions/stats", txH.Stats)
			r.Get("/transactions/{id}", txH.Get)
			r.Post("/transactions/reset-failed", txH.ResetFailed)
			r.Delete("/transactions/synced", txH.PurgeSynced)
			r.Delete("/transactions/failed", txH.PurgeFailed)

			// Sync engine
			r.Get("/sync/state", syncH.State)
			r.Post("/sync/trigger", syncH.Trigger)
			r.Get("/connectivity", syncH.Connectivity)
			r.Post("/connectivity", syncH.SetConnectivity)

			// Catalog mirror
			r.Post("/catalog/sync", catalogH.Sync)
			r.Get("/catalog/sync/progress", catalogH.Progress)
			r.Get("/catalog/products", catalogH.ListProducts)
			r.Get("/catalog/products/{id}/image", catalogH.ProductImage)
			r.Get("/catalog/categories", catalogH.ListCategories)
			r.Get("/catalog/stats", catalogH.Stats)
			r.Delete("/catalog/cache", catalogH.ClearCache)
		})
	})

	return r
}
