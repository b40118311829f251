// Package remote publishes asset repositories to OCI registries and fetches
// them back.
//
// A published repository is a single image:
//   - layer 0 holds the descriptor
//   - further layers hold revision and preview payloads, packed by
//     PackLayer and grouped by BuildLayerPlan
//   - config labels carry the repository uuid, the descriptor version and
//     the path → layer digest map
package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/aweris/amber/internal/repository"
)

const (
	LabelUUID    = "dev.amber.uuid"
	LabelVersion = "dev.amber.version"
	LabelFiles   = "dev.amber.files"
)

var (
	ErrNotRepository = errors.New("remote: image is not an asset repository")
	ErrNotFound      = fmt.Errorf("remote: %w", fs.ErrNotExist)
)

// Remote handles OCI registry operations for one reference.
type Remote interface {
	// Publish uploads the repository rooted at dir.
	Publish(ctx context.Context, dir string) (*PublishResult, error)

	// Fetch downloads the manifest and descriptor. Payload layers are
	// downloaded on demand by the returned snapshot.
	Fetch(ctx context.Context) (*Snapshot, error)
}

// PublishResult summarizes a Publish call.
type PublishResult struct {
	Ref        string
	Digest     string
	Layers     int
	Files      int
	Raw        int64
	Compressed int64
}

// Snapshot is a fetched repository image. It is safe for concurrent use.
type Snapshot struct {
	Ref        string
	UUID       string
	Version    string
	Descriptor []byte

	files       map[string]string   // path -> layer digest
	layers      map[string]v1.Layer // digest -> layer
	concurrency int

	group    singleflight.Group
	mu       sync.Mutex
	unpacked map[string]map[string][]byte
}

// Files returns the payload paths, sorted.
func (s *Snapshot) Files() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether rel is the descriptor or a payload of the image.
func (s *Snapshot) Has(rel string) bool {
	if rel == repository.DescriptorName {
		return true
	}
	_, ok := s.files[rel]
	return ok
}

// ReadFile returns the descriptor or a payload. The layer holding the
// payload is downloaded once and shared by concurrent readers.
func (s *Snapshot) ReadFile(ctx context.Context, rel string) ([]byte, error) {
	if rel == repository.DescriptorName {
		return s.Descriptor, nil
	}
	digest, ok := s.files[rel]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	files, err := s.layer(ctx, digest)
	if err != nil {
		return nil, err
	}
	data, ok := files[rel]
	if !ok {
		return nil, fmt.Errorf("%s missing from layer %s: %w", rel, digest, ErrNotFound)
	}
	return data, nil
}

func (s *Snapshot) layer(ctx context.Context, digest string) (map[string][]byte, error) {
	s.mu.Lock()
	files, ok := s.unpacked[digest]
	s.mu.Unlock()
	if ok {
		return files, nil
	}

	ch := s.group.DoChan(digest, func() (any, error) {
		l, ok := s.layers[digest]
		if !ok {
			return nil, fmt.Errorf("layer %s: %w", digest, ErrNotFound)
		}
		data, err := readLayer(l)
		if err != nil {
			return nil, err
		}
		files, err := UnpackLayer(data)
		if err != nil {
			return nil, fmt.Errorf("unpack layer %s: %w", digest, err)
		}
		s.mu.Lock()
		s.unpacked[digest] = files
		s.mu.Unlock()
		return files, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string][]byte), nil
	}
}

// Pull writes the descriptor and every payload under dir, downloading layers
// in parallel.
func (s *Snapshot) Pull(ctx context.Context, dir string) error {
	if err := writeFile(dir, repository.DescriptorName, s.Descriptor); err != nil {
		return err
	}

	digests := make(map[string]bool)
	for _, d := range s.files {
		digests[d] = true
	}

	p := pool.New().WithMaxGoroutines(s.concurrency).WithContext(ctx).WithCancelOnError()
	for digest := range digests {
		p.Go(func(ctx context.Context) error {
			files, err := s.layer(ctx, digest)
			if err != nil {
				return err
			}
			for rel, data := range files {
				if err := writeFile(dir, rel, data); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return p.Wait()
}

func writeFile(dir, rel string, data []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
