// Package repository holds the in-memory model of an asset repository
// (entries → variants → revisions), the plain-directory rows used when no
// repository descriptor is present, and the descriptor codec.
//
// Entities are stored in maps keyed by identifier; "default" selections are
// identifier fields, never pointers into sibling structures.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/aweris/amber/internal/ident"
)

const (
	// DescriptorName is the reserved filename marking a repository root.
	DescriptorName = "__amber_db.json"
	// SupportedVersion is the only descriptor version accepted.
	SupportedVersion = "1.0.1"
)

var (
	ErrNotFound           = errors.New("repository: not found")
	ErrMalformed          = errors.New("repository: malformed descriptor")
	ErrUnsupportedVersion = errors.New("repository: unsupported descriptor version")
)

// Revision is one immutable versioned file backing a variant.
type Revision struct {
	ID        ident.ID
	Size      int64
	Timestamp float64 // seconds since epoch
	Path      string  // relative to the repository root
	Comment   string
	Preview   string // optional relative path of a preview payload
}

// Time returns the revision timestamp as a time.Time.
func (r *Revision) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Variant is a named alternative form of an entry.
type Variant struct {
	ID              ident.ID
	Name            string
	Description     string
	Revisions       map[ident.ID]*Revision
	DefaultRevision ident.ID
}

// Entry is an asset-level node of a repository.
type Entry struct {
	ID             ident.ID
	Name           string
	Description    string
	FileType       string
	HostType       string
	Tags           []string
	Variants       map[ident.ID]*Variant
	DefaultVariant ident.ID
}

// Repository is a parsed descriptor.
type Repository struct {
	ID      ident.ID
	Version string
	Entries map[ident.ID]*Entry
	Tags    map[string]int
}

// Key returns the registry key of the repository.
func (r *Repository) Key() ident.ID { return ident.RepositoryKey(r.ID) }

// Default returns the default variant and its default revision.
func (e *Entry) Default() (*Variant, *Revision, error) {
	return e.Resolve(ident.Zero, ident.Zero)
}

// Resolve selects a variant and revision. Zero identifiers select the
// defaults.
func (e *Entry) Resolve(variantID, revisionID ident.ID) (*Variant, *Revision, error) {
	if variantID.IsZero() {
		variantID = e.DefaultVariant
	}
	v, ok := e.Variants[variantID]
	if !ok {
		return nil, nil, fmt.Errorf("variant %s of entry %q: %w", variantID, e.Name, ErrNotFound)
	}
	if revisionID.IsZero() {
		revisionID = v.DefaultRevision
	}
	r, ok := v.Revisions[revisionID]
	if !ok {
		return v, nil, fmt.Errorf("revision %s of variant %q: %w", revisionID, v.Name, ErrNotFound)
	}
	return v, r, nil
}

// HasTags reports whether the entry carries every tag in include and none in
// exclude.
func (e *Entry) HasTags(include, exclude map[string]bool) bool {
	if len(include) == 0 && len(exclude) == 0 {
		return true
	}
	matched := make(map[string]bool, len(include))
	for _, t := range e.Tags {
		if exclude[t] {
			return false
		}
		if include[t] {
			matched[t] = true
		}
	}
	return len(matched) == len(include)
}
