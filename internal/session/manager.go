package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gapminder/internal/idgen"
	"gapminder/internal/view"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Manager owns the live sessions. All sessions share one Controller since
// it only reads the dataset.
type Manager struct {
	data    *Data
	ctl     *view.Controller
	opts    Options
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time
}

// NewManager returns a Manager for data. Sessions idle for longer than
// idleTTL are closed by Sweep; zero disables expiry.
func NewManager(data *Data, opts Options, idleTTL time.Duration) *Manager {
	opts = opts.withDefaults()
	ctl := view.NewController(data.Store, data.Summary, opts.Layout,
		view.WithSizeScale(opts.SizeScale),
		view.WithLogger(opts.Logger))
	return &Manager{
		data:     data,
		ctl:      ctl,
		opts:     opts,
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Layout returns the bucket layout of every session.
func (m *Manager) Layout() view.Layout { return m.ctl.Layout() }

// PopulationLabels returns the population checkbox labels sessions offer.
func (m *Manager) PopulationLabels() []string {
	labels, _ := m.data.PopulationChoices(m.opts.Excluded)
	return labels
}

// Regions returns the region names in dataset order.
func (m *Manager) Regions() []string { return m.data.Store.RegionDict }

// Create starts a new session.
func (m *Manager) Create() (*Session, error) {
	id, err := idgen.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	s, err := New(id, m.data, m.ctl, m.opts)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.now = m.now
	s.lastUsed = m.now()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.opts.Logger.Info("session created", zap.String("session", id), zap.Stringer("layout", m.ctl.Layout()))
	return s, nil
}

// Get returns a live session. Sessions closed by a failure are dropped
// on lookup.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.Closed() {
		m.remove(id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Close ends and forgets a session.
func (m *Manager) Close(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close(ctx, reason)
	return nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions that are closed already or idle past the TTL and
// returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := m.idleTTL > 0 && now.Sub(s.LastUsed()) > m.idleTTL
		if idle || s.Closed() {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close(ctx, "idle")
	}
	if len(stale) > 0 {
		m.opts.Logger.Info("swept sessions", zap.Int("removed", len(stale)), zap.Int("live", m.Len()))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close(context.Background(), "shutdown")
	}
}
