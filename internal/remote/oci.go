package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/amber/internal/compression"
	"github.com/aweris/amber/internal/repository"
)

const DefaultConcurrency = 4

type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	log         *slog.Logger
}

// NewOCIRemote creates a remote from a standard Docker ref (e.g., "ttl.sh/assets/wood:main").
func NewOCIRemote(imageRef string, auth Authenticator, opts ...name.Option) (*OCIRemote, error) {
	opts = append([]name.Option{name.WithDefaultTag("latest")}, opts...)
	ref, err := name.ParseReference(imageRef, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	return &OCIRemote{
		ref:         ref,
		auth:        auth,
		concurrency: DefaultConcurrency,
		log:         slog.New(slog.DiscardHandler),
	}, nil
}

// SetConcurrency sets the number of parallel operations for publish/pull.
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

// SetLogger sets the logger used for progress messages.
func (r *OCIRemote) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = log
	}
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }
func (r *OCIRemote) Tag() string      { return r.ref.Identifier() }

// WithTag returns a new OCIRemote with a different tag.
func (r *OCIRemote) WithTag(tag string) (*OCIRemote, error) {
	newRef, err := name.NewTag(r.ref.Context().String()+":"+tag, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, err
	}
	return &OCIRemote{ref: newRef, auth: r.auth, concurrency: r.concurrency, log: r.log}, nil
}

// blobLayer implements v1.Layer with zstd compression for remote transfer.
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

func newBlobLayer(c *compression.Compressor, data []byte) (*blobLayer, error) {
	compressed, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	return &blobLayer{compressed: compressed, uncompressed: data}, nil
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// payloadPaths lists every revision and preview path of repo.
func payloadPaths(repo *repository.Repository) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, e := range repo.Entries {
		for _, v := range e.Variants {
			for _, rev := range v.Revisions {
				add(rev.Path)
				add(rev.Preview)
			}
		}
	}
	return paths
}

// Publish uploads the repository rooted at dir. The descriptor must exist
// and decode; every file it references is packed into payload layers.
func (r *OCIRemote) Publish(ctx context.Context, dir string) (*PublishResult, error) {
	desc, err := os.ReadFile(filepath.Join(dir, repository.DescriptorName))
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	repo, err := repository.Decode(desc)
	if err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	sizes := make(map[string]int64)
	for _, p := range payloadPaths(repo) {
		st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		sizes[p] = st.Size()
	}
	plan := BuildLayerPlan(sizes)

	r.log.Info("publishing repository", "ref", r.ref.String(), "files", len(sizes), "layers", len(plan)+1)

	comp, err := compression.New(compression.LevelDefault, true)
	if err != nil {
		return nil, err
	}
	defer comp.Close()

	// Read and pack layers in parallel; each goroutine owns one slot.
	payload := make([]*blobLayer, len(plan))
	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()
	for i, group := range plan {
		p.Go(func(ctx context.Context) error {
			files := make(map[string][]byte, len(group))
			for _, rel := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
				if err != nil {
					return fmt.Errorf("read %s: %w", rel, err)
				}
				files[rel] = data
			}
			packed, err := PackLayer(files)
			if err != nil {
				return err
			}
			payload[i], err = newBlobLayer(comp, packed)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	res := &PublishResult{Ref: r.ref.String(), Files: len(sizes)}
	layers := make([]v1.Layer, 0, len(payload)+1)
	descLayer, err := newBlobLayer(comp, desc)
	if err != nil {
		return nil, err
	}
	layers = append(layers, descLayer)
	res.Raw += int64(len(descLayer.uncompressed))
	res.Compressed += int64(len(descLayer.compressed))

	fileLayers := make(map[string]string, len(sizes))
	for i, l := range payload {
		digest, err := l.Digest()
		if err != nil {
			return nil, fmt.Errorf("digest layer: %w", err)
		}
		for _, rel := range plan[i] {
			fileLayers[rel] = digest.String()
		}
		layers = append(layers, l)
		res.Raw += int64(len(l.uncompressed))
		res.Compressed += int64(len(l.compressed))
	}
	res.Layers = len(layers)

	img, err := r.buildImage(layers, map[string]string{
		LabelUUID:    repo.ID.Hex(),
		LabelVersion: repo.Version,
	}, fileLayers)
	if err != nil {
		return nil, fmt.Errorf("build image: %w", err)
	}
	if err := r.pushImage(ctx, img); err != nil {
		return nil, fmt.Errorf("push image: %w", err)
	}
	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("image digest: %w", err)
	}
	res.Digest = digest.String()

	r.log.Info("published repository", "ref", res.Ref, "digest", res.Digest,
		"raw_bytes", res.Raw, "compressed_bytes", res.Compressed)
	return res, nil
}

func (r *OCIRemote) buildImage(layers []v1.Layer, labels map[string]string, files map[string]string) (v1.Image, error) {
	img, err := mutate.AppendLayers(empty.Image, layers...)
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}

	cfg.Config.Labels = map[string]string{LabelFiles: string(filesJSON)}
	for k, v := range labels {
		cfg.Config.Labels[k] = v
	}

	return mutate.ConfigFile(img, cfg)
}

func (r *OCIRemote) pushImage(ctx context.Context, img v1.Image) error {
	options := r.remoteOptions(ctx)
	options = append(options, remote.WithJobs(r.concurrency))
	_, err := retry(ctx, 3, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	})
	return err
}

// Fetch downloads the image manifest, config and descriptor layer.
func (r *OCIRemote) Fetch(ctx context.Context) (*Snapshot, error) {
	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	labels := cfg.Config.Labels
	if labels[LabelUUID] == "" {
		return nil, fmt.Errorf("%s: %w", r.ref, ErrNotRepository)
	}

	files := make(map[string]string)
	if filesJSON := labels[LabelFiles]; filesJSON != "" {
		if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
			return nil, fmt.Errorf("parse %s label: %w", LabelFiles, err)
		}
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%s has no descriptor layer: %w", r.ref, ErrNotRepository)
	}

	desc, err := readLayer(layers[0])
	if err != nil {
		return nil, fmt.Errorf("read descriptor layer: %w", err)
	}

	byDigest := make(map[string]v1.Layer, len(layers)-1)
	for _, l := range layers[1:] {
		digest, err := l.Digest()
		if err != nil {
			continue
		}
		byDigest[digest.String()] = l
	}

	r.log.Debug("fetched repository", "ref", r.ref.String(), "files", len(files), "layers", len(layers))
	return &Snapshot{
		Ref:         r.ref.String(),
		UUID:        labels[LabelUUID],
		Version:     labels[LabelVersion],
		Descriptor:  desc,
		files:       files,
		layers:      byDigest,
		concurrency: r.concurrency,
		unpacked:    make(map[string]map[string][]byte),
	}, nil
}

func readLayer(l v1.Layer) ([]byte, error) {
	rc, err := l.Uncompressed()
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil {
		return nil, fmt.Errorf("close layer: %w", cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	return data, nil
}

func (r *OCIRemote) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return append(options, remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			}))
		}
	}
	return append(options, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
