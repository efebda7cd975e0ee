package syncengine

import (
	"sync"
	"time"
)

// SyncState is the aggregate snapshot published to subscribers after every
// mutation of the engine's observable state.
type SyncState struct {
	Status            string     `json:"status"` // idle, syncing, error
	PendingCount      int        `json:"pendingCount"`
	SyncingCount      int        `json:"syncingCount"`
	FailedCount       int        `json:"failedCount"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
	CurrentlySyncing  []string   `json:"currentlySyncing"`
	Error             string     `json:"error,omitempty"`
}

const (
	stateIdle    = "idle"
	stateSyncing = "syncing"
	stateError   = "error"
)

// Broadcaster is an observer registry for sync state. Subscribers get the
// current snapshot immediately, then one snapshot per mutation. Unsubscribing
// is idempotent and removes the callback reference entirely.
type Broadcaster struct {
	mu    sync.Mutex
	subs  map[int]func(SyncState)
	next  int
	state SyncState
}

// NewBroadcaster creates a Broadcaster in the idle state.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]func(SyncState)),
		state: SyncState{
			Status:           stateIdle,
			CurrentlySyncing: []string{},
		},
	}
}

// Subscribe registers a callback and immediately delivers the current state.
// The returned function unsubscribes; calling it more than once is harmless.
func (b *Broadcaster) Subscribe(fn func(SyncState)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	fn(snapshot)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// State returns the current snapshot.
func (b *Broadcaster) State() SyncState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// update mutates the state under the lock and notifies every subscriber with
// an independent snapshot copy.
func (b *Broadcaster) update(mutate func(*SyncState)) {
	b.mu.Lock()
	mutate(&b.state)
	snapshot := b.snapshotLocked()
	fns := make([]func(SyncState), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (b *Broadcaster) snapshotLocked() SyncState {
	s := b.state
	s.CurrentlySyncing = append([]string(nil), b.state.CurrentlySyncing...)
	return s
}
