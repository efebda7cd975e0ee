package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/remote"
	"github.com/rs/zerolog"
)

// Submitter sends a queued transaction to the remote endpoint.
type Submitter interface {
	Submit(ctx context.Context, t *transaction.PendingTransaction) (*remote.SubmitResult, error)
}

// ConflictEvent is raised when the server rejects a transaction as already
// processed or failing a business rule. Conflicted records are terminal and
// require manual resolution.
type ConflictEvent struct {
	Transaction *transaction.PendingTransaction
	Detail      json.RawMessage
}

// Config tunes the engine.
type Config struct {
	MaxRetries   int
	PollInterval time.Duration
}

// Engine orchestrates sync passes over the local queue. A pass drains pending
// records strictly in creation order and sequentially: server-side effects
// such as stock decrements and receipt numbering are order-sensitive. All
// record state lives in the store, so passes survive process restarts.
type Engine struct {
	repo    transaction.Repository
	remote  Submitter
	online  func() bool
	bc      *Broadcaster
	metrics *observability.Metrics
	logger  zerolog.Logger
	cfg     Config

	busy    atomic.Bool
	trigger chan struct{}

	conflictMu sync.Mutex
	onConflict func(ConflictEvent)
}

// New creates an Engine. online reports current connectivity; passes are
// suppressed while it returns false.
func New(
	repo transaction.Repository,
	submitter Submitter,
	online func() bool,
	bc *Broadcaster,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		repo:    repo,
		remote:  submitter,
		online:  online,
		bc:      bc,
		metrics: metrics,
		logger:  logger.With().Str("component", "syncengine").Logger(),
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
}

// Broadcaster returns the engine's state broadcaster.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.bc
}

// OnConflict registers the conflict callback. Only one callback is held; the
// composition root fans out if multiple consumers care.
func (e *Engine) OnConflict(fn func(ConflictEvent)) {
	e.conflictMu.Lock()
	e.onConflict = fn
	e.conflictMu.Unlock()
}

// Nudge requests a pass without blocking. Used by the enqueue hook and the
// offline-to-online edge; coalesces with any pass already requested.
func (e *Engine) Nudge() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run demotes records stranded in syncing by a previous crash, then loops on
// the poll ticker and explicit triggers until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.sweepStale(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Startup sweep failed")
	}
	e.RefreshCounts(ctx)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.SyncNow(ctx)
		case <-e.trigger:
			e.SyncNow(ctx)
		}
	}
}

// sweepStale returns records stuck in syncing to pending. A record is only
// ever in syncing while a pass is in flight, so on startup any such record
// was abandoned mid-submission and is safe to retry.
func (e *Engine) sweepStale(ctx context.Context) error {
	stale, err := e.repo.ListByStatus(ctx, transaction.StatusSyncing)
	if err != nil {
		return err
	}
	for _, t := range stale {
		err := e.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
			return cur.TransitionTo(transaction.StatusPending)
		})
		if err != nil {
			e.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to demote stale record")
			continue
		}
		e.logger.Warn().Str("id", t.ID).Msg("Demoted record stranded in syncing")
	}
	return nil
}

// SyncNow runs one sync pass. It is a no-op while offline or while another
// pass is running; the busy flag is in-memory and process-scoped.
func (e *Engine) SyncNow(ctx context.Context) {
	if e.online != nil && !e.online() {
		return
	}
	if !e.busy.CompareAndSwap(false, true) {
		return
	}
	defer e.busy.Store(false)

	start := time.Now()
	e.bc.update(func(s *SyncState) {
		s.Status = stateSyncing
		s.Error = ""
	})

	pending, err := e.repo.ListByStatus(ctx, transaction.StatusPending)
	if err != nil {
		// Enumeration failure is engine-level: no record state was touched,
		// so surface it through the broadcaster only.
		e.logger.Error().Err(err).Msg("Failed to load pending transactions")
		e.bc.update(func(s *SyncState) {
			s.Status = stateError
			s.Error = err.Error()
		})
		return
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp < pending[j].Timestamp
	})

	for _, t := range pending {
		select {
		case <-ctx.Done():
			e.finishPass(ctx, start)
			return
		default:
		}
		e.processRecord(ctx, t)
	}

	e.finishPass(ctx, start)
}

func (e *Engine) finishPass(ctx context.Context, start time.Time) {
	now := time.Now()
	e.bc.update(func(s *SyncState) {
		s.Status = stateIdle
		s.LastSyncAt = &now
	})
	e.RefreshCounts(ctx)
	e.metrics.SyncPassDuration.Observe(time.Since(start).Seconds())
}

// processRecord pushes one record through mark-syncing, submit, and the
// resulting durable transition. Storage failures on a single record are
// logged and skipped so one bad record never aborts a whole pass.
func (e *Engine) processRecord(ctx context.Context, t *transaction.PendingTransaction) {
	e.bc.update(func(s *SyncState) {
		s.CurrentlySyncing = append(s.CurrentlySyncing, t.ID)
	})
	defer e.bc.update(func(s *SyncState) {
		s.CurrentlySyncing = removeID(s.CurrentlySyncing, t.ID)
	})

	err := e.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
		return cur.MarkSyncing()
	})
	if err != nil {
		e.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to mark record syncing")
		return
	}

	result, submitErr := e.remote.Submit(ctx, t)

	switch {
	case submitErr == nil:
		err := e.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
			return cur.MarkSynced(result.ServerID)
		})
		if err != nil {
			e.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to mark record synced")
			return
		}
		e.metrics.SyncResults.WithLabelValues("synced").Inc()
		e.logger.Info().Str("id", t.ID).Str("serverId", result.ServerID).Msg("Transaction synced")

	case errors.Is(submitErr, domainErrors.ErrConflict):
		var updated *transaction.PendingTransaction
		err := e.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
			if err := cur.MarkConflict(submitErr.Error()); err != nil {
				return err
			}
			updated = cur
			return nil
		})
		if err != nil {
			e.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to mark record conflicted")
			return
		}
		e.metrics.SyncResults.WithLabelValues("conflict").Inc()
		e.logger.Warn().Str("id", t.ID).Msg("Transaction conflict, manual resolution required")

		var conflictErr *domainErrors.ConflictError
		var detail json.RawMessage
		if errors.As(submitErr, &conflictErr) {
			detail = conflictErr.Detail
		}
		e.fireConflict(ConflictEvent{Transaction: updated, Detail: detail})

	default:
		terminal := false
		err := e.repo.Update(ctx, t.ID, func(cur *transaction.PendingTransaction) error {
			if err := cur.MarkTransientFailure(submitErr.Error(), e.cfg.MaxRetries); err != nil {
				return err
			}
			terminal = cur.Status == transaction.StatusFailed
			return nil
		})
		if err != nil {
			e.logger.Error().Err(err).Str("id", t.ID).Msg("Failed to record transient failure")
			return
		}
		e.metrics.SubmitRetries.Inc()
		if terminal {
			e.metrics.SyncResults.WithLabelValues("exhausted").Inc()
			e.logger.Error().Err(submitErr).Str("id", t.ID).Msg("Transaction failed permanently, retries exhausted")
		} else {
			e.metrics.SyncResults.WithLabelValues("retryable").Inc()
			e.logger.Warn().Err(submitErr).Str("id", t.ID).Msg("Transaction sync failed, will retry")
		}
	}
}

func (e *Engine) fireConflict(ev ConflictEvent) {
	e.conflictMu.Lock()
	fn := e.onConflict
	e.conflictMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// RefreshCounts recomputes aggregate counts from the store and broadcasts
// them. Also called after purge and retry-reset operations.
func (e *Engine) RefreshCounts(ctx context.Context) {
	counts, err := e.repo.CountByStatus(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to refresh queue counts")
		return
	}
	e.bc.update(func(s *SyncState) {
		s.PendingCount = counts[transaction.StatusPending]
		s.SyncingCount = counts[transaction.StatusSyncing]
		s.FailedCount = counts[transaction.StatusFailed]
	})
	for status, n := range counts {
		e.metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
