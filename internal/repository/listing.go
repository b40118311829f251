package repository

import (
	"time"

	"github.com/aweris/amber/internal/ident"
)

// Dir is a plain directory row, used when the listed path holds no
// descriptor.
type Dir struct {
	Path    string
	Size    int64
	ModTime time.Time
	ID      ident.ID
}

// Listing is the cache of the currently listed path. A path is either a
// repository root or a plain directory, never both: setting a repository
// clears the directory rows and vice versa.
type Listing struct {
	Root       string
	Repository *Repository
	Dirs       []Dir
}

// Reset forgets everything, including the root.
func (l *Listing) Reset() {
	l.Root = ""
	l.Repository = nil
	l.Dirs = nil
}

// IsRepository reports whether the listing holds a repository.
func (l *Listing) IsRepository() bool { return l.Repository != nil }

// SetRepository replaces any cached repository wholesale and drops the
// directory rows.
func (l *Listing) SetRepository(r *Repository) {
	l.Repository = r
	l.Dirs = nil
}

// ClearRepository drops the cached repository.
func (l *Listing) ClearRepository() { l.Repository = nil }

// ClearDirs drops the directory rows.
func (l *Listing) ClearDirs() { l.Dirs = nil }

// AddDir appends a directory row. It is ignored while a repository is
// cached.
func (l *Listing) AddDir(d Dir) {
	if l.Repository != nil {
		return
	}
	l.Dirs = append(l.Dirs, d)
}

// Len returns the number of rows: repository entries or directories.
func (l *Listing) Len() int {
	if l.Repository != nil {
		return len(l.Repository.Entries)
	}
	return len(l.Dirs)
}
