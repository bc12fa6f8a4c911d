package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/config"
)

// DefaultConnection names the store built from the top-level database config.
const DefaultConnection = "default"

var ErrUnknownConnection = errors.New("unknown connection")

// Opener opens a Store for a named connection config.
type Opener func(ctx context.Context, cfg config.DatabaseConfig) (*Store, error)

// Manager hands out stores by connection name, opening named connections
// on first use.
type Manager struct {
	mu      sync.RWMutex
	def     *Store
	stores  map[string]*Store
	configs map[string]config.DatabaseConfig
	open    Opener
}

// NewManager creates a Manager around the default store. Named configs are
// opened lazily with New.
func NewManager(def *Store, configs map[string]config.DatabaseConfig) *Manager {
	return &Manager{
		def:     def,
		stores:  make(map[string]*Store),
		configs: configs,
		open:    New,
	}
}

// WithOpener replaces the function used to open named connections.
func (m *Manager) WithOpener(open Opener) *Manager {
	m.open = open
	return m
}

// Register installs an already opened store under name.
func (m *Manager) Register(name string, s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[name] = s
}

// Default returns the default store.
func (m *Manager) Default() *Store {
	return m.def
}

// Get returns the store for name, lazy-initializing on cache miss. An empty
// name or "default" returns the default store.
func (m *Manager) Get(ctx context.Context, name string) (*Store, error) {
	if name == "" || name == DefaultConnection {
		return m.def, nil
	}

	m.mu.RLock()
	s, ok := m.stores[name]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	cfg, ok := m.configs[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConnection, "%q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s, err := m.open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open connection %s", name)
	}
	m.stores[name] = s
	return s, nil
}

// Names lists the configured connection names, default first.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var names []string
	for name := range m.configs {
		seen[name] = true
		names = append(names, name)
	}
	for name := range m.stores {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{DefaultConnection}, names...)
}

// Close closes every opened store, the default one included.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.stores {
		s.Close()
		delete(m.stores, name)
	}
	if m.def != nil {
		m.def.Close()
	}
}
