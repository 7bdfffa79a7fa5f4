package session

import (
	"context"
	"sync"
)

// MemoryPersister keeps the session blob in memory. It backs ephemeral
// sessions and tests.
type MemoryPersister struct {
	mu     sync.Mutex
	saved  *Session
	saves  int
	clears int
	LoadFn func(ctx context.Context) (*Session, error)
	SaveFn func(ctx context.Context, s Session) error
	// ClearFn, when set, replaces Clear.
	ClearFn func(ctx context.Context) error
}

// NewMemoryPersister returns a persister preloaded with initial (may be nil).
func NewMemoryPersister(initial *Session) *MemoryPersister {
	m := &MemoryPersister{}
	if initial != nil {
		c := initial.Clone()
		m.saved = &c
	}
	return m
}

func (m *MemoryPersister) Load(ctx context.Context) (*Session, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, nil
	}
	c := m.saved.Clone()
	return &c, nil
}

func (m *MemoryPersister) Save(ctx context.Context, s Session) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	m.saved = &c
	m.saves++
	return nil
}

func (m *MemoryPersister) Clear(ctx context.Context) error {
	if m.ClearFn != nil {
		return m.ClearFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	m.clears++
	return nil
}

// Clears returns how many times the blob was cleared.
func (m *MemoryPersister) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// Saved returns the last saved session and the number of saves.
func (m *MemoryPersister) Saved() (*Session, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, m.saves
	}
	c := m.saved.Clone()
	return &c, m.saves
}
