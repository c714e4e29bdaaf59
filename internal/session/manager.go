package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/hackhub/internal/baas"
)

// CookieName is the browser session cookie.
const CookieName = "hh_sid"

// NewSessionID returns a fresh browser session id.
func NewSessionID() string { return uuid.NewString() }

type entry struct {
	store    *Store
	lastSeen time.Time
}

// Manager keeps one Store per browser session id. Stores are created on
// first use and dropped by Sweep once idle; the tokens themselves live in
// the TokenStore, so an evicted browser is rebuilt on its next request.
type Manager struct {
	api    baas.AuthAPI
	tokens TokenStore
	roles  RoleResolver
	idle   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
}

func NewManager(api baas.AuthAPI, tokens TokenStore, roles RoleResolver, idle time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		api:    api,
		tokens: tokens,
		roles:  roles,
		idle:   idle,
		logger: logger,
		now:    time.Now,
		stores: make(map[string]*entry),
	}
}

// Get returns the Store for sid, creating it if needed, synced with the
// browser's current tokens.
func (m *Manager) Get(ctx context.Context, sid string) (*Store, error) {
	m.mu.Lock()
	e, ok := m.stores[sid]
	if !ok {
		auth := NewAuth(sid, m.api, m.tokens, m.logger)
		e = &entry{store: NewStore(auth, m.roles, m.logger.With("sid", sid))}
		m.stores[sid] = e
	}
	e.lastSeen = m.now()
	m.mu.Unlock()

	if err := e.store.Sync(ctx); err != nil {
		return nil, err
	}
	return e.store, nil
}

// Evict closes and forgets the Store for sid.
func (m *Manager) Evict(sid string) {
	m.mu.Lock()
	e, ok := m.stores[sid]
	delete(m.stores, sid)
	m.mu.Unlock()
	if ok {
		e.store.Close()
	}
}

// Sweep evicts every Store idle for longer than the idle timeout and
// returns how many were dropped.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var stale []*Store
	for sid, e := range m.stores {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.store)
			delete(m.stores, sid)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		m.logger.Info("evicted idle sessions", "count", len(stale))
	}
	return len(stale)
}

// Len is the number of live stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Close evicts everything.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.stores
	m.stores = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.store.Close()
	}
}
