package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Prober checks whether the remote backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor converts periodic reachability probes into two edges, became-online
// and became-offline, plus a current boolean. Going offline only suppresses
// new sync passes; a pass already in flight is left to fail on its own
// network errors and fall back to retry semantics.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	online    bool
	known     bool
	onOnline  []func()
	onOffline []func()
}

// NewMonitor creates a Monitor. The first probe result establishes the
// initial state without firing an edge; callbacks fire only on actual
// transitions after that.
func NewMonitor(prober Prober, interval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		logger:   logger.With().Str("component", "connectivity").Logger(),
	}
}

// OnOnline registers a callback for the offline-to-online edge.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// OnOffline registers a callback for the online-to-offline edge.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	m.onOffline = append(m.onOffline, fn)
	m.mu.Unlock()
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline forces the state, firing edge callbacks on change. Used by tests
// and by an explicit airplane-mode toggle in the control API.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online)
}

// Run probes immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.prober.Ping(ctx)
	m.transition(err == nil)
}

func (m *Monitor) transition(online bool) {
	m.mu.Lock()
	first := !m.known
	changed := m.online != online
	m.online = online
	m.known = true

	var callbacks []func()
	if changed && !first {
		if online {
			callbacks = append([]func(){}, m.onOnline...)
		} else {
			callbacks = append([]func(){}, m.onOffline...)
		}
	}
	m.mu.Unlock()

	if first || changed {
		m.logger.Info().Bool("online", online).Msg("Connectivity state")
	}
	for _, fn := range callbacks {
		fn()
	}
}
