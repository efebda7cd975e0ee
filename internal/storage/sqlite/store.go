package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cassiomorais/possync/internal/config"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the single shared SQLite handle backing all local collections.
// Initialization is lazy and memoized: concurrent callers of DB converge on
// one connection, and opening an already-populated database at a newer schema
// version only adds collections (migrations are additive).
type Store struct {
	cfg    config.StoreConfig
	logger zerolog.Logger

	initOnce sync.Once
	db       *sql.DB
	initErr  error

	// SQLite has a single writer; serializing writes here avoids
	// SQLITE_BUSY churn between the sync loop and the control API.
	writeMu sync.Mutex
}

// New creates a Store. The database is not opened until first use.
func New(cfg config.StoreConfig, logger zerolog.Logger) *Store {
	return &Store{
		cfg:    cfg,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB returns the shared database handle, opening and migrating it on first
// call. Subsequent calls return the memoized handle or the original error.
func (s *Store) DB(ctx context.Context) (*sql.DB, error) {
	s.initOnce.Do(func() {
		s.initErr = s.open(ctx)
	})
	return s.db, s.initErr
}

func (s *Store) open(ctx context.Context) error {
	if dir := filepath.Dir(s.cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("run migrations: %w", err)
	}

	s.db = db
	s.logger.Info().Str("path", s.cfg.Path).Msg("Local store opened")
	return nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// WithTx executes fn inside a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.DB(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying handle if it was ever opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
