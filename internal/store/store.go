// Package store keeps preview payloads keyed by entry identifier.
//
// Previews are small, written once and read many times while a listing is
// browsed, so every store fronts its backing medium with an LRU cache.
package store

import (
	"context"
	"errors"

	"github.com/aweris/amber/internal/ident"
)

var ErrNotFound = errors.New("store: preview not found")

// Store handles preview storage.
type Store interface {
	// Get retrieves the preview of an entry.
	Get(ctx context.Context, id ident.ID) ([]byte, error)

	// Put stores the preview of an entry, replacing any previous one.
	Put(ctx context.Context, id ident.ID, data []byte) error

	// Has checks if a preview exists.
	Has(ctx context.Context, id ident.ID) (bool, error)

	// Evict removes a preview from the cache (not from disk).
	Evict(id ident.ID)
}
