// Package registry remembers where each known repository was last listed:
// repository key → root path. The engine updates it whenever a repository
// is listed and consults it to realize stored asset references.
package registry

import (
	"context"
	"maps"
	"sync"

	"github.com/aweris/amber/internal/ident"
)

// Registry is the persisted repository → root index.
type Registry interface {
	// Load replaces the in-memory state with the persisted one.
	Load(ctx context.Context) error

	// Get returns the root recorded for key.
	Get(key ident.ID) (root string, ok bool)

	// Set records root for key and reports whether the stored value changed.
	Set(key ident.ID, root string) (changed bool)

	// All returns a copy of every record.
	All() map[ident.ID]string

	// Save persists the in-memory state if it changed since the last
	// Load or Save.
	Save(ctx context.Context) error

	Close() error
}

// entries is the in-memory state shared by every backend.
type entries struct {
	mu    sync.RWMutex
	roots map[ident.ID]string
	dirty bool
}

func (e *entries) Get(key ident.ID) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	root, ok := e.roots[key]
	return root, ok
}

func (e *entries) Set(key ident.ID, root string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.roots[key]; ok && old == root {
		return false
	}
	if e.roots == nil {
		e.roots = make(map[ident.ID]string)
	}
	e.roots[key] = root
	e.dirty = true
	return true
}

func (e *entries) All() map[ident.ID]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.roots == nil {
		return map[ident.ID]string{}
	}
	return maps.Clone(e.roots)
}

func (e *entries) replace(roots map[ident.ID]string) {
	e.mu.Lock()
	e.roots = roots
	e.dirty = false
	e.mu.Unlock()
}

// snapshot returns a copy of the state if it is dirty.
func (e *entries) snapshot() (map[ident.ID]string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.dirty {
		return nil, false
	}
	return maps.Clone(e.roots), true
}

func (e *entries) markClean() {
	e.mu.Lock()
	e.dirty = false
	e.mu.Unlock()
}

// Memory is a registry that persists nothing.
type Memory struct {
	entries
}

func NewMemory() *Memory { return &Memory{} }

func (*Memory) Load(context.Context) error { return nil }

func (m *Memory) Save(context.Context) error {
	m.markClean()
	return nil
}

func (*Memory) Close() error { return nil }
