package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/possync/internal/config"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *sqlite.Store
	Metrics *observability.Metrics
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().
		Str("service", serviceName).
		Str("terminal", cfg.TerminalID).
		Msg("Starting")

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	store := sqlite.New(cfg.Store, logger)
	if _, err := store.DB(ctx); err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	logger.Info().Str("path", cfg.Store.Path).Msg("Local store ready")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Metrics: metrics,
	}, nil
}

func (a *App) Close() {
	a.Store.Close()
}
