package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/rs/zerolog"
)

// Queue manages the lifecycle of locally queued sale transactions. Enqueue is
// the offline-first entry point: the record is durable and its id returned
// before any network contact is attempted.
type Queue struct {
	repo      transaction.Repository
	logger    zerolog.Logger
	onEnqueue func()
}

// New creates a Queue on top of the given repository.
func New(repo transaction.Repository, logger zerolog.Logger) *Queue {
	return &Queue{
		repo:   repo,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// SetEnqueueHook registers a callback invoked after every durable enqueue.
// The sync engine uses it to trigger an immediate pass while online.
func (q *Queue) SetEnqueueHook(fn func()) {
	q.onEnqueue = fn
}

// Enqueue durably records a sale and returns its client-generated id. It
// succeeds with zero connectivity; syncing happens later and independently.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	t := transaction.New(payload)
	if err := q.repo.Insert(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue transaction: %w", err)
	}

	q.logger.Info().Str("id", t.ID).Msg("Transaction queued")

	if q.onEnqueue != nil {
		q.onEnqueue()
	}
	return t.ID, nil
}

// Get returns a single queued transaction.
func (q *Queue) Get(ctx context.Context, id string) (*transaction.PendingTransaction, error) {
	return q.repo.Get(ctx, id)
}

// ListByStatus returns queued transactions in creation order.
func (q *Queue) ListByStatus(ctx context.Context, status transaction.Status) ([]*transaction.PendingTransaction, error) {
	return q.repo.ListByStatus(ctx, status)
}

// ListAll returns every queued transaction in creation order.
func (q *Queue) ListAll(ctx context.Context) ([]*transaction.PendingTransaction, error) {
	return q.repo.ListAll(ctx)
}

// Transition applies a read-modify-write mutation to a record. It fails with
// ErrTransactionNotFound when the id is absent.
func (q *Queue) Transition(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error {
	return q.repo.Update(ctx, id, mutate)
}

// Counts returns per-status record counts.
func (q *Queue) Counts(ctx context.Context) (map[transaction.Status]int, error) {
	return q.repo.CountByStatus(ctx)
}

// PurgeSynced permanently deletes synced records. Destructive; only ever
// invoked from an explicit user action, never automatically.
func (q *Queue) PurgeSynced(ctx context.Context) (int, error) {
	n, err := q.repo.DeleteByStatus(ctx, transaction.StatusSynced)
	if err != nil {
		return 0, fmt.Errorf("purge synced: %w", err)
	}
	q.logger.Info().Int("count", n).Msg("Purged synced transactions")
	return n, nil
}

// PurgeFailed permanently deletes failed records. Destructive; only ever
// invoked from an explicit user action, never automatically.
func (q *Queue) PurgeFailed(ctx context.Context) (int, error) {
	n, err := q.repo.DeleteByStatus(ctx, transaction.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("purge failed: %w", err)
	}
	q.logger.Info().Int("count", n).Msg("Purged failed transactions")
	return n, nil
}

// ResetFailed makes every failed record retry-eligible again: status back to
// pending, retry count zeroed, error and conflict marker cleared.
func (q *Queue) ResetFailed(ctx context.Context) (int, error) {
	failed, err := q.repo.ListByStatus(ctx, transaction.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("list failed: %w", err)
	}

	reset := 0
	for _, t := range failed {
		err := q.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
			return cur.ResetForRetry()
		})
		if err != nil {
			q.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to reset transaction")
			continue
		}
		reset++
	}
	return reset, nil
}
