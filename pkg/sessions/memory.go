// Package sessions provides login session tables for the reservation engine
package sessions

import (
	"context"
	"sync"
)

// Memory is a process-local session table
type Memory struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewMemory creates an empty table
func NewMemory() *Memory {
	return &Memory{active: make(map[string]struct{})}
}

// Begin opens a session, returning false if one is already open
func (m *Memory) Begin(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[username]; ok {
		return false, nil
	}
	m.active[username] = struct{}{}
	return true, nil
}

// End closes a session, returning false if none was open
func (m *Memory) End(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[username]; !ok {
		return false, nil
	}
	delete(m.active, username)
	return true, nil
}

// Active reports whether the user has an open session
func (m *Memory) Active(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[username]
	return ok, nil
}

// Reset closes every session
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[string]struct{})
	return nil
}
