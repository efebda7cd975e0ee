package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/possync/internal/bootstrap"
	"github.com/cassiomorais/possync/internal/catalogsync"
	"github.com/cassiomorais/possync/internal/connectivity"
	"github.com/cassiomorais/possync/internal/controller"
	"github.com/cassiomorais/possync/internal/queue"
	"github.com/cassiomorais/possync/internal/remote"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
	"github.com/cassiomorais/possync/internal/syncengine"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "possync-agent", "possync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	txRepo := sqlite.NewTransactionRepository(app.Store)
	productRepo := sqlite.NewProductRepository(app.Store)
	categoryRepo := sqlite.NewCategoryRepository(app.Store)
	imageRepo := sqlite.NewImageRepository(app.Store)
	metaRepo := sqlite.NewMetadataRepository(app.Store)

	// --- Remote client and connectivity ---
	remoteClient := remote.NewClient(app.Config.Remote, app.Config.Catalog, app.Logger)
	monitor := connectivity.NewMonitor(remoteClient, app.Config.Sync.ProbeInterval, app.Logger)

	// --- Sync engine and queue ---
	engine := syncengine.New(
		txRepo,
		remoteClient,
		monitor.Online,
		syncengine.NewBroadcaster(),
		app.Metrics,
		app.Logger,
		syncengine.Config{
			MaxRetries:   app.Config.Sync.MaxRetries,
			PollInterval: app.Config.Sync.PollInterval,
		},
	)
	engine.OnConflict(func(ev syncengine.ConflictEvent) {
		app.Logger.Warn().
			Str("id", ev.Transaction.ID).
			RawJSON("detail", nonEmptyJSON(ev.Detail)).
			Msg("Transaction conflict, manual resolution required")
	})

	q := queue.New(txRepo, app.Logger)
	q.SetEnqueueHook(func() {
		if monitor.Online() {
			engine.Nudge()
		}
	})
	monitor.OnOnline(engine.Nudge)

	// --- Catalog mirror ---
	imageCache := catalogsync.NewImageCache(imageRepo, app.Config.Catalog.ImageDir)
	catalogSvc := catalogsync.NewService(
		productRepo,
		categoryRepo,
		imageRepo,
		metaRepo,
		remoteClient,
		monitor.Online,
		imageCache,
		app.Metrics,
		app.Logger,
		app.Config.Catalog.ImageConcurrency,
	)

	// --- Control API ---
	router := controller.NewRouter(controller.RouterDeps{
		Store:      app.Store,
		Queue:      q,
		Engine:     engine,
		Monitor:    monitor,
		Catalog:    catalogSvc,
		Images:     imageRepo,
		Metrics:    app.Metrics,
		CORSConfig: app.Config.Server.CORS,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", app.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Connectivity monitor (probes the remote health endpoint).
	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	// 2. Transaction sync engine (poll ticker plus enqueue/online triggers).
	g.Go(func() error {
		return engine.Run(gCtx)
	})

	// 3. Localhost control API.
	g.Go(func() error {
		app.Logger.Info().Str("addr", server.Addr).Msg("Control API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 4. Wait for shutdown signal, then drain the HTTP server.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
		case <-quit:
			app.Logger.Info().Msg("Shutting down agent...")
			cancel()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Agent error")
	}
	app.Logger.Info().Msg("Agent exited")
}

func nonEmptyJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
