package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extractdesk/backend/internal/widget"
)

// MaxWidgets limits concurrently mounted widgets to bound blob storage.
const MaxWidgets = 64

// WidgetKeepAliveWindow protects recently used widgets from eviction.
const WidgetKeepAliveWindow = 5 * time.Minute

// ErrTooManyWidgets is returned by Mount when the limit is reached and no
// widget can be evicted.
var ErrTooManyWidgets = errors.New("too many mounted widgets")

// Factory builds a widget for a freshly allocated ID.
type Factory func(id string) *widget.Widget

// Manager tracks mounted widget instances, one per open page.
type Manager struct {
	widgets    map[string]*WidgetState
	mu         sync.RWMutex
	factory    Factory
	maxWidgets int
	logger     *zap.Logger

	// OnUnmount, if set, runs after a widget has been closed.
	OnUnmount func(id string)
}

// WidgetState holds a widget and its bookkeeping.
type WidgetState struct {
	Widget       *widget.Widget
	MountedAt    time.Time
	LastAccessed time.Time
}

// NewManager creates a widget manager. A non-positive maxWidgets uses MaxWidgets.
func NewManager(factory Factory, maxWidgets int, logger *zap.Logger) *Manager {
	if maxWidgets <= 0 {
		maxWidgets = MaxWidgets
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		widgets:    make(map[string]*WidgetState),
		factory:    factory,
		maxWidgets: maxWidgets,
		logger:     logger.Named("session"),
	}
}

// Mount creates a new widget, evicting the least recently used idle widget
// when at capacity.
func (m *Manager) Mount() (*widget.Widget, error) {
	if err := m.evictIfNeeded(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	w := m.factory(id)
	now := time.Now()

	m.mu.Lock()
	m.widgets[id] = &WidgetState{Widget: w, MountedAt: now, LastAccessed: now}
	count := len(m.widgets)
	m.mu.Unlock()

	m.logger.Info("widget mounted", zap.String("widget", id[:8]), zap.Int("mounted", count))
	return w, nil
}

// Get returns a mounted widget and refreshes its keep-alive.
func (m *Manager) Get(id string) (*widget.Widget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.widgets[id]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.Widget, true
}

// Touch refreshes a widget's keep-alive without returning it.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Unmount closes and forgets a widget.
func (m *Manager) Unmount(id string) bool {
	m.mu.Lock()
	state, ok := m.widgets[id]
	if ok {
		delete(m.widgets, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.close(id, state.Widget)
	return true
}

// Count returns the number of mounted widgets.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// CleanupIdleWidgets unmounts widgets not accessed within maxAge. Widgets with
// an upload in flight are kept. It returns how many were removed.
func (m *Manager) CleanupIdleWidgets(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*WidgetState
	var ids []string
	for id, state := range m.widgets {
		if state.LastAccessed.After(cutoff) || state.Widget.Snapshot().Uploading {
			continue
		}
		stale = append(stale, state)
		ids = append(ids, id)
		delete(m.widgets, id)
	}
	m.mu.Unlock()

	for i, state := range stale {
		m.logger.Info("cleaned up idle widget",
			zap.String("widget", ids[i][:8]),
			zap.Duration("idle", time.Since(state.LastAccessed).Round(time.Second)))
		m.close(ids[i], state.Widget)
	}
	return len(stale)
}

// Run reaps idle widgets every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CleanupIdleWidgets(maxAge)
		}
	}
}

// CloseAll unmounts every widget.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.widgets
	m.widgets = make(map[string]*WidgetState)
	m.mu.Unlock()

	for id, state := range all {
		m.close(id, state.Widget)
	}
}

func (m *Manager) evictIfNeeded() error {
	m.mu.Lock()
	if len(m.widgets) < m.maxWidgets {
		m.mu.Unlock()
		return nil
	}

	keepAliveCutoff := time.Now().Add(-WidgetKeepAliveWindow)
	var candidates []string
	for id, state := range m.widgets {
		if state.LastAccessed.After(keepAliveCutoff) || state.Widget.Snapshot().Uploading {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		m.mu.Unlock()
		return ErrTooManyWidgets
	}

	sort.Slice(candidates, func(i, j int) bool {
		return m.widgets[candidates[i]].LastAccessed.Before(m.widgets[candidates[j]].LastAccessed)
	})
	id := candidates[0]
	state := m.widgets[id]
	delete(m.widgets, id)
	m.mu.Unlock()

	m.logger.Info("evicted widget to make room", zap.String("widget", id[:8]))
	m.close(id, state.Widget)
	return nil
}

func (m *Manager) close(id string, w *widget.Widget) {
	w.Close()
	if m.OnUnmount != nil {
		m.OnUnmount(id)
	}
}
