package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aweris/amber/internal/ident"
)

// DefaultCacheSize is the number of previews kept in memory.
const DefaultCacheSize = 512

// MemoryStore keeps previews in an LRU cache only. Evicted previews are gone
// and will be fetched again by the next preview job that asks for them.
type MemoryStore struct {
	cache *lru.Cache[ident.ID, []byte]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := newCache(size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func newCache(size int) (*lru.Cache[ident.ID, []byte], error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[ident.ID, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return cache, nil
}

func (s *MemoryStore) Get(_ context.Context, id ident.ID) ([]byte, error) {
	if data, ok := s.cache.Get(id); ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *MemoryStore) Put(_ context.Context, id ident.ID, data []byte) error {
	s.cache.Add(id, data)
	return nil
}

func (s *MemoryStore) Has(_ context.Context, id ident.ID) (bool, error) {
	return s.cache.Contains(id), nil
}

func (s *MemoryStore) Evict(id ident.ID) { s.cache.Remove(id) }
