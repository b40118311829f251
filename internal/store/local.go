package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aweris/amber/internal/compression"
	"github.com/aweris/amber/internal/ident"
)

// LocalStore implements Store using the local filesystem.
//
// Storage layout:
//
//	basePath/
//	  previews/
//	    ab/cd123...  (framed, optionally zstd compressed)
type LocalStore struct {
	basePath   string
	cache      *lru.Cache[ident.ID, []byte]
	compressor *compression.Compressor
}

func NewLocalStore(basePath string, cacheSize int, level compression.Level, compress bool) (*LocalStore, error) {
	dir := filepath.Join(basePath, "previews")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	compressor, err := compression.New(level, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	cache, err := newCache(cacheSize)
	if err != nil {
		return nil, err
	}

	return &LocalStore{
		basePath:   dir,
		cache:      cache,
		compressor: compressor,
	}, nil
}

// Get retrieves a preview, reading through the cache.
func (s *LocalStore) Get(ctx context.Context, id ident.ID) ([]byte, error) {
	if data, ok := s.cache.Get(id); ok {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read preview: %w", err)
	}

	data, err := s.compressor.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode preview %s: %w", id, err)
	}

	s.cache.Add(id, data)
	return data, nil
}

// Put writes a preview through to disk. The write goes to a temporary file
// renamed into place, so readers never observe a partial preview.
func (s *LocalStore) Put(ctx context.Context, id ident.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".preview-*")
	if err != nil {
		return fmt.Errorf("failed to create preview: %w", err)
	}
	if _, err := tmp.Write(s.compressor.Encode(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preview: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preview: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store preview: %w", err)
	}

	s.cache.Add(id, data)
	return nil
}

// Has checks the cache, then the disk.
func (s *LocalStore) Has(_ context.Context, id ident.ID) (bool, error) {
	if s.cache.Contains(id) {
		return true, nil
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Evict removes a preview from the cache.
func (s *LocalStore) Evict(id ident.ID) { s.cache.Remove(id) }

// Close releases the compressor.
func (s *LocalStore) Close() error { return s.compressor.Close() }

// path shards by the first identifier byte: previews/ab/cd123...
func (s *LocalStore) path(id ident.ID) string {
	h := id.Hex()
	return filepath.Join(s.basePath, h[:2], h[2:])
}
