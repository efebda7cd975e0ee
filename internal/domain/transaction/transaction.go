package transaction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the lifecycle state of a locally queued transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// PendingTransaction is a sale recorded durably on the terminal before any
// server contact. The payload is opaque to the sync layer: items, totals,
// payment and customer details are validated server-side on submission.
type PendingTransaction struct {
	ID           string
	Timestamp    int64 // creation time, ms since epoch; defines submission order
	Status       Status
	RetryCount   int
	Payload      json.RawMessage
	Error        string
	ConflictFlag bool
	SyncedAt     *time.Time
	ServerID     string
}

// New creates a pending transaction with a client-generated,
// collision-resistant id. The record carries its creation timestamp so
// submission order survives restarts.
func New(payload json.RawMessage) *PendingTransaction {
	now := time.Now()
	return &PendingTransaction{
		ID:        fmt.Sprintf("txn_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		Timestamp: now.UnixMilli(),
		Status:    StatusPending,
		Payload:   payload,
	}
}

// CanTransitionTo checks whether the transaction may move to newStatus.
// Once synced a record is immutable until explicit purge.
func (t *PendingTransaction) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {StatusSyncing},
		StatusSyncing: {
			StatusSynced,
			StatusPending, // transient failure, retry-eligible
			StatusFailed,
		},
		StatusFailed: {StatusPending}, // manual retry reset
		StatusSynced: {},              // terminal until purge
	}

	for _, allowed := range transitions[t.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the transaction to a new status.
func (t *PendingTransaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return fmt.Errorf("cannot transition from %s to %s: %w",
			t.Status, newStatus, errors.ErrInvalidStateTransition)
	}
	t.Status = newStatus
	return nil
}

// MarkSyncing marks the transaction as in flight.
func (t *PendingTransaction) MarkSyncing() error {
	return t.TransitionTo(StatusSyncing)
}

// MarkSynced records a successful submission.
func (t *PendingTransaction) MarkSynced(serverID string) error {
	if err := t.TransitionTo(StatusSynced); err != nil {
		return err
	}
	now := time.Now()
	t.SyncedAt = &now
	t.ServerID = serverID
	t.Error = ""
	return nil
}

// MarkConflict records a server-signaled conflict. Conflicted records are
// terminal and never auto-retried.
func (t *PendingTransaction) MarkConflict(reason string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.ConflictFlag = true
	t.Error = reason
	t.RetryCount++
	return nil
}

// MarkTransientFailure records a retryable failure. The record goes back to
// pending until retryCount reaches maxRetries, then becomes terminally failed.
func (t *PendingTransaction) MarkTransientFailure(reason string, maxRetries int) error {
	t.RetryCount++
	t.Error = reason

	next := StatusPending
	if t.RetryCount >= maxRetries {
		next = StatusFailed
	}
	return t.TransitionTo(next)
}

// ResetForRetry makes a failed record retry-eligible again. Only valid for
// failed records; the conflict marker is cleared because the operator has
// explicitly chosen to resubmit.
func (t *PendingTransaction) ResetForRetry() error {
	if err := t.TransitionTo(StatusPending); err != nil {
		return err
	}
	t.RetryCount = 0
	t.Error = ""
	t.ConflictFlag = false
	return nil
}

// IsTerminal reports whether the record is excluded from automatic passes.
func (t *PendingTransaction) IsTerminal() bool {
	return t.Status == StatusSynced || t.Status == StatusFailed
}
