package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
)

const transactionColumns = `id, timestamp, status, retry_count, payload, error, conflict, synced_at, server_id`

// TransactionRepository implements transaction.Repository on the local store.
type TransactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*transaction.PendingTransaction, error) {
	var (
		t        transaction.PendingTransaction
		payload  string
		conflict int
		syncedAt sql.NullInt64
	)
	if err := s.Scan(
		&t.ID, &t.Timestamp, &t.Status, &t.RetryCount,
		&payload, &t.Error, &conflict, &syncedAt, &t.ServerID,
	); err != nil {
		return nil, err
	}
	t.Payload = []byte(payload)
	t.ConflictFlag = conflict != 0
	if syncedAt.Valid {
		ts := time.UnixMilli(syncedAt.Int64)
		t.SyncedAt = &ts
	}
	return &t, nil
}

func transactionArgs(t *transaction.PendingTransaction) []any {
	var syncedAt any
	if t.SyncedAt != nil {
		syncedAt = t.SyncedAt.UnixMilli()
	}
	conflict := 0
	if t.ConflictFlag {
		conflict = 1
	}
	return []any{
		t.ID, t.Timestamp, string(t.Status), t.RetryCount,
		string(t.Payload), t.Error, conflict, syncedAt, t.ServerID,
	}
}

// Insert durably stores a new transaction record.
func (r *TransactionRepository) Insert(ctx context.Context, t *transaction.PendingTransaction) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			transactionArgs(t)...,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		return nil
	})
}

// Get returns the record with the given id, or ErrTransactionNotFound.
func (r *TransactionRepository) Get(ctx context.Context, id string) (*transaction.PendingTransaction, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainErrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// ListByStatus returns all records with the given status, ordered by creation
// time ascending. Submission order depends on this ordering.
func (r *TransactionRepository) ListByStatus(ctx context.Context, status transaction.Status) ([]*transaction.PendingTransaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions
		WHERE status = ? ORDER BY timestamp ASC`, string(status))
}

// ListAll returns every queued record ordered by creation time.
func (r *TransactionRepository) ListAll(ctx context.Context) ([]*transaction.PendingTransaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM pending_transactions ORDER BY timestamp ASC`)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*transaction.PendingTransaction, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []*transaction.PendingTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// Update applies mutate to the current record inside a storage transaction and
// writes the result back. A missing id fails with ErrTransactionNotFound.
func (r *TransactionRepository) Update(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTransaction(tx.QueryRowContext(ctx, `
			SELECT `+transactionColumns+` FROM pending_transactions WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domainErrors.ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("read transaction %s: %w", id, err)
		}

		if err := mutate(t); err != nil {
			return err
		}

		args := transactionArgs(t)
		_, err = tx.ExecContext(ctx, `
			UPDATE pending_transactions
			SET timestamp = ?, status = ?, retry_count = ?, payload = ?,
			    error = ?, conflict = ?, synced_at = ?, server_id = ?
			WHERE id = ?`,
			args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[8], id,
		)
		if err != nil {
			return fmt.Errorf("write transaction %s: %w", id, err)
		}
		return nil
	})
}

// Delete removes a single record.
func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM pending_transactions WHERE id = ?`, id)
		return err
	})
}

// DeleteByStatus removes every record with the given status and returns the
// number removed.
func (r *TransactionRepository) DeleteByStatus(ctx context.Context, status transaction.Status) (int, error) {
	var count int
	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM pending_transactions WHERE status = ?`, string(status))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		count = int(n)
		return err
	})
	return count, err
}

// CountByStatus returns counts for every lifecycle state, zero-filled.
func (r *TransactionRepository) CountByStatus(ctx context.Context) (map[transaction.Status]int, error) {
	db, err := r.store.DB(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[transaction.Status]int{
		transaction.StatusPending: 0,
		transaction.StatusSyncing: 0,
		transaction.StatusSynced:  0,
		transaction.StatusFailed:  0,
	}

	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM pending_transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[transaction.Status(status)] = n
	}
	return counts, rows.Err()
}
