package payment

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AryanJadile/restoflow/internal/cart"
)

type Deps struct {
	Gateway  Gateway
	Placer   Placer
	Pub      Publisher
	Carts    cart.Persister
	Currency string
	Producer string // service name stamped on event envelopes
	Log      *slog.Logger
}

// Manager hands out one Session per terminal, restoring the terminal's
// persisted cart the first time it shows up.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

func (m *Manager) Session(ctx context.Context, terminal string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[terminal]; ok {
		return s
	}
	ct := cart.New(terminal, m.deps.Carts, m.deps.Log)
	if err := ct.Restore(ctx); err != nil {
		m.deps.Log.Warn("cart restore failed", "terminal", terminal, "err", err)
	}
	s := NewSession(terminal, ct, m.deps)
	m.sessions[terminal] = s
	return s
}
