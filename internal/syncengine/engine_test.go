package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/possync/internal/domain/errors"
	"github.com/cassiomorais/possync/internal/domain/transaction"
	"github.com/cassiomorais/possync/internal/observability"
	"github.com/cassiomorais/possync/internal/remote"
	"github.com/cassiomorais/possync/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(repo *testutil.MockTransactionRepository, submitter *testutil.MockSubmitter, online bool) *Engine {
	onlineFlag := online
	return New(
		repo,
		submitter,
		func() bool { return onlineFlag },
		NewBroadcaster(),
		observability.NewMetrics("test", prometheus.NewRegistry()),
		zerolog.Nop(),
		Config{MaxRetries: 3, PollInterval: time.Second},
	)
}

func seedPending(t *testing.T, repo *testutil.MockTransactionRepository, id string, timestamp int64) *transaction.PendingTransaction {
	t.Helper()
	txn := transaction.New(json.RawMessage(`{"total":10}`))
	txn.ID = id
	txn.Timestamp = timestamp
	require.NoError(t, repo.Insert(context.Background(), txn))
	return txn
}

func mustGet(t *testing.T, repo *testutil.MockTransactionRepository, id string) *transaction.PendingTransaction {
	t.Helper()
	txn, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return txn
}

func TestSyncNow_MixedOutcomes(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_1", 1000)
	seedPending(t, repo, "txn_2", 2000)
	seedPending(t, repo, "txn_3", 3000)

	submitter.Results["txn_1"] = []testutil.SubmitOutcome{
		{Result: &remote.SubmitResult{ServerID: "srv_1"}},
	}
	submitter.Results["txn_2"] = []testutil.SubmitOutcome{
		{Err: domainErrors.NewConflictError(json.RawMessage(`{"reason":"duplicate"}`))},
	}
	submitter.Results["txn_3"] = []testutil.SubmitOutcome{
		{Err: errors.New("status 500")},
	}

	// Three passes: txn_3 fails transiently each time until its budget of 3
	// attempts is spent. txn_1 and txn_2 are terminal after the first pass.
	engine.SyncNow(ctx)
	engine.SyncNow(ctx)
	engine.SyncNow(ctx)

	t1 := mustGet(t, repo, "txn_1")
	assert.Equal(t, transaction.StatusSynced, t1.Status)
	assert.Equal(t, "srv_1", t1.ServerID)
	require.NotNil(t, t1.SyncedAt)

	t2 := mustGet(t, repo, "txn_2")
	assert.Equal(t, transaction.StatusFailed, t2.Status)
	assert.True(t, t2.ConflictFlag)

	t3 := mustGet(t, repo, "txn_3")
	assert.Equal(t, transaction.StatusFailed, t3.Status)
	assert.False(t, t3.ConflictFlag)
	assert.Equal(t, 3, t3.RetryCount)
	assert.Contains(t, t3.Error, "status 500")

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[transaction.StatusPending])
	assert.Equal(t, 1, counts[transaction.StatusSynced])
	assert.Equal(t, 2, counts[transaction.StatusFailed])
}

func TestSyncNow_SubmitsInTimestampOrder(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)

	// Seeded newest first; submission must still run oldest first.
	seedPending(t, repo, "txn_c", 3000)
	seedPending(t, repo, "txn_a", 1000)
	seedPending(t, repo, "txn_b", 2000)

	engine.SyncNow(context.Background())

	assert.Equal(t, []string{"txn_a", "txn_b", "txn_c"}, submitter.SubmittedIDs())
}

func TestSyncNow_TransientFailureStaysRetryable(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_1", 1000)
	submitter.Results["txn_1"] = []testutil.SubmitOutcome{
		{Err: errors.New("connection refused")},
	}

	engine.SyncNow(ctx)

	txn := mustGet(t, repo, "txn_1")
	assert.Equal(t, transaction.StatusPending, txn.Status)
	assert.Equal(t, 1, txn.RetryCount)
	assert.Contains(t, txn.Error, "connection refused")
}

func TestSyncNow_ConflictNeverAutoRetried(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_1", 1000)
	submitter.Results["txn_1"] = []testutil.SubmitOutcome{
		{Err: domainErrors.NewConflictError(nil)},
	}

	engine.SyncNow(ctx)
	engine.SyncNow(ctx)
	engine.SyncNow(ctx)

	// One submission only; the conflicted record is terminal.
	assert.Equal(t, []string{"txn_1"}, submitter.SubmittedIDs())
	assert.Equal(t, transaction.StatusFailed, mustGet(t, repo, "txn_1").Status)
}

func TestSyncNow_ConflictCallbackGetsDetail(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)

	seedPending(t, repo, "txn_1", 1000)
	detail := json.RawMessage(`{"existingReceipt":"RCP-100"}`)
	submitter.Results["txn_1"] = []testutil.SubmitOutcome{
		{Err: domainErrors.NewConflictError(detail)},
	}

	var got *ConflictEvent
	engine.OnConflict(func(ev ConflictEvent) { got = &ev })

	engine.SyncNow(context.Background())

	require.NotNil(t, got)
	assert.Equal(t, "txn_1", got.Transaction.ID)
	assert.True(t, got.Transaction.ConflictFlag)
	assert.JSONEq(t, string(detail), string(got.Detail))
}

func TestSyncNow_OfflineIsNoOp(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, false)

	seedPending(t, repo, "txn_1", 1000)

	engine.SyncNow(context.Background())

	assert.Empty(t, submitter.SubmittedIDs())
	assert.Equal(t, transaction.StatusPending, mustGet(t, repo, "txn_1").Status)
}

func TestSyncNow_ReentrantPassIsSkipped(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_1", 1000)

	calls := 0
	submitter.SubmitFunc = func(ctx context.Context, tx *transaction.PendingTransaction) (*remote.SubmitResult, error) {
		calls++
		// A pass started while one is running must bail on the busy flag.
		engine.SyncNow(ctx)
		return &remote.SubmitResult{ServerID: "srv_1"}, nil
	}

	engine.SyncNow(ctx)
	assert.Equal(t, 1, calls)
}

func TestSyncNow_EnumerationFailureBroadcastsError(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)

	repo.ListByStatusFunc = func(ctx context.Context, status transaction.Status) ([]*transaction.PendingTransaction, error) {
		return nil, errors.New("database is locked")
	}

	engine.SyncNow(context.Background())

	state := engine.Broadcaster().State()
	assert.Equal(t, stateError, state.Status)
	assert.Contains(t, state.Error, "database is locked")
}

func TestSyncNow_LocalStorageFailureSkipsRecordOnly(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_bad", 1000)
	seedPending(t, repo, "txn_good", 2000)

	repo.UpdateFunc = func(ctx context.Context, id string, mutate func(*transaction.PendingTransaction) error) error {
		if id == "txn_bad" {
			return errors.New("disk I/O error")
		}
		return repo.ApplyUpdate(ctx, id, mutate)
	}

	engine.SyncNow(ctx)

	// txn_bad was never submitted, txn_good completed normally.
	assert.Equal(t, []string{"txn_good"}, submitter.SubmittedIDs())
	assert.Equal(t, transaction.StatusSynced, mustGet(t, repo, "txn_good").Status)
	assert.Equal(t, transaction.StatusPending, mustGet(t, repo, "txn_bad").Status)
}

func TestSweepStale_DemotesStrandedRecords(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	stranded := transaction.New(json.RawMessage(`{}`))
	stranded.ID = "txn_stranded"
	require.NoError(t, stranded.MarkSyncing())
	require.NoError(t, repo.Insert(ctx, stranded))

	synced := transaction.New(json.RawMessage(`{}`))
	synced.ID = "txn_done"
	require.NoError(t, synced.MarkSyncing())
	require.NoError(t, synced.MarkSynced("srv_1"))
	require.NoError(t, repo.Insert(ctx, synced))

	require.NoError(t, engine.sweepStale(ctx))

	assert.Equal(t, transaction.StatusPending, mustGet(t, repo, "txn_stranded").Status)
	assert.Equal(t, transaction.StatusSynced, mustGet(t, repo, "txn_done").Status)
}

func TestNudge_Coalesces(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)

	// Nudge never blocks, no matter how many times it is called before the
	// loop drains the trigger.
	for i := 0; i < 10; i++ {
		engine.Nudge()
	}
	assert.Len(t, engine.trigger, 1)
}

func TestSyncNow_UpdatesBroadcasterCounts(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	submitter := testutil.NewMockSubmitter()
	engine := newTestEngine(repo, submitter, true)
	ctx := context.Background()

	seedPending(t, repo, "txn_1", 1000)
	seedPending(t, repo, "txn_2", 2000)
	submitter.Results["txn_2"] = []testutil.SubmitOutcome{
		{Err: domainErrors.NewConflictError(nil)},
	}

	engine.SyncNow(ctx)

	state := engine.Broadcaster().State()
	assert.Equal(t, stateIdle, state.Status)
	assert.Equal(t, 0, state.PendingCount)
	assert.Equal(t, 1, state.FailedCount)
	assert.Empty(t, state.CurrentlySyncing)
	require.NotNil(t, state.LastSyncAt)
	assert.WithinDuration(t, time.Now(), *state.LastSyncAt, time.Minute)
}
