package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aweris/amber/internal/ident"
)

// File keeps the registry in a JSON object mapping hex repository keys to
// root paths.
type File struct {
	entries
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Load reads the file. A missing file is an empty registry.
func (f *File) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.replace(make(map[ident.ID]string))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse registry %s: %w", f.path, err)
	}
	roots := make(map[ident.ID]string, len(raw))
	for k, root := range raw {
		key, err := ident.ParseHex(k)
		if err != nil {
			return fmt.Errorf("parse registry key %q: %w", k, err)
		}
		roots[key] = root
	}
	f.replace(roots)
	return nil
}

func (f *File) serialize(roots map[ident.ID]string) ([]byte, error) {
	raw := make(map[string]string, len(roots))
	for key, root := range roots {
		raw[key.Hex()] = root
	}
	return json.MarshalIndent(raw, "", "  ")
}

// Save writes the file if anything changed.
func (f *File) Save(ctx context.Context) error {
	roots, dirty := f.snapshot()
	if !dirty {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	data, err := f.serialize(roots)
	if err != nil {
		return fmt.Errorf("serialize registry: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}

	f.markClean()
	return nil
}

func (f *File) Close() error { return f.Save(context.Background()) }
