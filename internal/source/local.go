package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local serves paths of the local filesystem.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (*Local) ReadDir(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return names, nil
}

func (*Local) Stat(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	st, err := os.Lstat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:    st.Name(),
		IsDir:   st.IsDir(),
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}, nil
}

func (*Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (*Local) Join(base string, elem ...string) string {
	parts := make([]string, 0, len(elem)+1)
	parts = append(parts, base)
	for _, e := range elem {
		parts = append(parts, filepath.FromSlash(e))
	}
	return filepath.Join(parts...)
}
