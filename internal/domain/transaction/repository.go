package transaction

import "context"

// Repository defines durable storage for queued transactions. Updates are
// read-modify-write: the mutate callback receives the current record inside a
// storage transaction and its changes are written back atomically, so a lost
// update cannot occur under concurrent access. Updating an absent id fails
// with errors.ErrTransactionNotFound, distinguishable from a no-op success.
type Repository interface {
	Insert(ctx context.Context, t *PendingTransaction) error
	Get(ctx context.Context, id string) (*PendingTransaction, error)
	ListByStatus(ctx context.Context, status Status) ([]*PendingTransaction, error)
	ListAll(ctx context.Context) ([]*PendingTransaction, error)
	Update(ctx context.Context, id string, mutate func(*PendingTransaction) error) error
	Delete(ctx context.Context, id string) error
	DeleteByStatus(ctx context.Context, status Status) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
