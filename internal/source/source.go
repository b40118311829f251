// Package source abstracts where listed paths live. Every call may block and
// is meant to run on a worker, never on the stepping goroutine.
package source

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"
)

var ErrUnsupportedScheme = errors.New("source: unsupported scheme")

// Info describes one path.
type Info struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Source is a hierarchical store of directories and files.
type Source interface {
	// ReadDir returns the names of the children of path.
	ReadDir(ctx context.Context, path string) ([]string, error)

	// Stat describes path without following a final symlink.
	Stat(ctx context.Context, path string) (Info, error)

	// ReadFile returns the content of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Join appends relative, slash separated elements to a path of this
	// source.
	Join(base string, elem ...string) string
}

// Exists reports whether path exists in src.
func Exists(ctx context.Context, src Source, path string) (bool, error) {
	_, err := src.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Scheme returns the scheme of path ("oci" for "oci://..."), or "" for plain
// filesystem paths.
func Scheme(path string) string {
	i := strings.Index(path, "://")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
