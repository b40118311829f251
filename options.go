package amber

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/amber/internal/registry"
	"github.com/aweris/amber/internal/remote"
	"github.com/aweris/amber/internal/scheduler"
	"github.com/aweris/amber/internal/source"
	"github.com/aweris/amber/internal/store"
)

// Authenticator provides credentials for remote registries.
type Authenticator = remote.Authenticator

// Source reads the paths handed to List.
type Source = source.Source

// Registry persists repository roots.
type Registry = registry.Registry

// PreviewStore keeps fetched previews.
type PreviewStore = store.Store

// RegistryFile is the registry file name inside the data directory.
const RegistryFile = "repos.json"

// Options configures an Engine.
type Options struct {
	DataDir      string
	Workers      int
	Source       Source
	Registry     Registry
	PreviewStore PreviewStore
	Auth         Authenticator
	Logger       *slog.Logger
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		DataDir: defaultDataDir(),
		Workers: scheduler.DefaultPoolSize,
	}
}

// WithDataDir sets the directory holding the registry file and previews.
func WithDataDir(dir string) Option {
	return func(o *Options) { o.DataDir = dir }
}

// WithWorkers sets the size of the worker pool running blocking I/O.
// Values below one are passed through so New can reject them.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithSource replaces the default local + OCI source.
func WithSource(src Source) Option {
	return func(o *Options) { o.Source = src }
}

// WithRegistry replaces the default JSON file registry. The engine loads
// it in New and closes it in Close.
func WithRegistry(r Registry) Option {
	return func(o *Options) { o.Registry = r }
}

// WithPreviewStore replaces the default on-disk preview store.
func WithPreviewStore(s PreviewStore) Option {
	return func(o *Options) { o.PreviewStore = s }
}

// WithAuth sets the credentials used by the default OCI source.
func WithAuth(auth Authenticator) Option {
	return func(o *Options) { o.Auth = auth }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(o *Options) { o.Logger = log }
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "amber")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "amber")
	}
	return ".amber"
}

func expandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
