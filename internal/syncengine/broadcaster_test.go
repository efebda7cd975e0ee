package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SubscribeDeliversCurrentStateImmediately(t *testing.T) {
	b := NewBroadcaster()
	b.update(func(s *SyncState) {
		s.Status = stateSyncing
		s.PendingCount = 3
	})

	var got []SyncState
	unsubscribe := b.Subscribe(func(s SyncState) {
		got = append(got, s)
	})
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, stateSyncing, got[0].Status)
	assert.Equal(t, 3, got[0].PendingCount)
}

func TestBroadcaster_NotifiesOnEveryUpdate(t *testing.T) {
	b := NewBroadcaster()

	var got []SyncState
	unsubscribe := b.Subscribe(func(s SyncState) {
		got = append(got, s)
	})
	defer unsubscribe()

	b.update(func(s *SyncState) { s.PendingCount = 1 })
	b.update(func(s *SyncState) { s.PendingCount = 2 })

	require.Len(t, got, 3) // initial + two updates
	assert.Equal(t, 1, got[1].PendingCount)
	assert.Equal(t, 2, got[2].PendingCount)
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()

	calls := 0
	unsubscribe := b.Subscribe(func(s SyncState) { calls++ })
	require.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // second call is harmless

	b.update(func(s *SyncState) { s.PendingCount = 9 })
	assert.Equal(t, 1, calls)
}

func TestBroadcaster_SnapshotsAreIndependent(t *testing.T) {
	b := NewBroadcaster()
	b.update(func(s *SyncState) {
		s.CurrentlySyncing = append(s.CurrentlySyncing, "txn_1")
	})

	snap := b.State()
	snap.CurrentlySyncing[0] = "mutated"

	assert.Equal(t, []string{"txn_1"}, b.State().CurrentlySyncing)
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()

	a, c := 0, 0
	unsubA := b.Subscribe(func(SyncState) { a++ })
	defer unsubA()
	unsubC := b.Subscribe(func(SyncState) { c++ })
	defer unsubC()

	b.update(func(s *SyncState) { s.FailedCount = 1 })

	assert.Equal(t, 2, a)
	assert.Equal(t, 2, c)
}
