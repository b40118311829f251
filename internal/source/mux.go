package source

import (
	"context"
	"fmt"
)

// Mux routes paths to a Source by scheme. Paths without a scheme go to the
// fallback.
type Mux struct {
	fallback Source
	schemes  map[string]Source
}

// NewMux returns a mux serving plain paths from fallback.
func NewMux(fallback Source) *Mux {
	return &Mux{fallback: fallback, schemes: make(map[string]Source)}
}

// Handle registers src for scheme. It is not safe to call once the mux is in
// use.
func (m *Mux) Handle(scheme string, src Source) { m.schemes[scheme] = src }

func (m *Mux) route(path string) (Source, error) {
	scheme := Scheme(path)
	if scheme == "" {
		return m.fallback, nil
	}
	src, ok := m.schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return src, nil
}

func (m *Mux) ReadDir(ctx context.Context, path string) ([]string, error) {
	src, err := m.route(path)
	if err != nil {
		return nil, err
	}
	return src.ReadDir(ctx, path)
}

func (m *Mux) Stat(ctx context.Context, path string) (Info, error) {
	src, err := m.route(path)
	if err != nil {
		return Info{}, err
	}
	return src.Stat(ctx, path)
}

func (m *Mux) ReadFile(ctx context.Context, path string) ([]byte, error) {
	src, err := m.route(path)
	if err != nil {
		return nil, err
	}
	return src.ReadFile(ctx, path)
}

func (m *Mux) Join(base string, elem ...string) string {
	src, err := m.route(base)
	if err != nil {
		return m.fallback.Join(base, elem...)
	}
	return src.Join(base, elem...)
}
