package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MetadataRepository implements catalog.MetadataRepository: a generic
// key/value bag for sync bookkeeping. A missing key reads as the empty string.
type MetadataRepository struct {
	store *Store
}

// NewMetadataRepository creates a new MetadataRepository.
func NewMetadataRepository(store *Store) *MetadataRepository {
	return &MetadataRepository{store: store}
}

func (r *MetadataRepository) Get(ctx context.Context, key string) (string, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

func (r *MetadataRepository) Set(ctx context.Context, key, value string) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_metadata (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("set metadata %s: %w", key, err)
		}
		return nil
	})
}
