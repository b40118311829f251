package source

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aweris/amber/internal/remote"
	"github.com/aweris/amber/internal/repository"
)

// OCIScheme prefixes paths served by OCI.
const OCIScheme = "oci"

const (
	ociPrefix = OCIScheme + "://"
	refSep    = "//"
)

// Opener returns the remote for an image reference.
type Opener func(ref string) (remote.Remote, error)

// DefaultOpener opens references with remote.NewOCIRemote.
func DefaultOpener(auth remote.Authenticator) Opener {
	return func(ref string) (remote.Remote, error) {
		return remote.NewOCIRemote(ref, auth)
	}
}

// OCI serves repositories published to an OCI registry. Paths look like
// "oci://registry/repo:tag" for the repository root and
// "oci://registry/repo:tag//rel/path" below it. A root always holds a
// descriptor.
type OCI struct {
	open Opener

	group     singleflight.Group
	mu        sync.Mutex
	snapshots map[string]*remote.Snapshot
}

func NewOCI(open Opener) *OCI {
	return &OCI{open: open, snapshots: make(map[string]*remote.Snapshot)}
}

func splitOCI(p string) (ref, rel string, err error) {
	rest, ok := strings.CutPrefix(p, ociPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, p)
	}
	ref, rel, _ = strings.Cut(rest, refSep)
	ref = strings.TrimSuffix(ref, "/")
	if ref == "" {
		return "", "", fmt.Errorf("%q: missing image reference", p)
	}
	if rel != "" {
		rel = path.Clean(rel)
		if rel == "." {
			rel = ""
		}
	}
	return ref, rel, nil
}

// Forget drops the cached snapshot of ref so the next call fetches it again.
func (o *OCI) Forget(ref string) {
	o.mu.Lock()
	delete(o.snapshots, ref)
	o.mu.Unlock()
}

func (o *OCI) snapshot(ctx context.Context, ref string) (*remote.Snapshot, error) {
	o.mu.Lock()
	snap, ok := o.snapshots[ref]
	o.mu.Unlock()
	if ok {
		return snap, nil
	}

	ch := o.group.DoChan(ref, func() (any, error) {
		r, err := o.open(ref)
		if err != nil {
			return nil, err
		}
		// Detached from the caller: a cancelled listing must not poison
		// the fetch shared with other callers.
		snap, err := r.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.snapshots[ref] = snap
		o.mu.Unlock()
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*remote.Snapshot), nil
	}
}

// children returns the immediate child names of dir among the snapshot's
// files, and whether dir is a directory at all.
func children(snap *remote.Snapshot, dir string) ([]string, bool) {
	seen := make(map[string]bool)
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	found := dir == ""
	for _, f := range snap.Files() {
		rest, ok := strings.CutPrefix(f, prefix)
		if !ok {
			continue
		}
		found = true
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = true
	}
	if dir == "" {
		seen[repository.DescriptorName] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, found
}

func (o *OCI) ReadDir(ctx context.Context, p string) ([]string, error) {
	ref, rel, err := splitOCI(p)
	if err != nil {
		return nil, err
	}
	snap, err := o.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	names, ok := children(snap, rel)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	return names, nil
}

func (o *OCI) Stat(ctx context.Context, p string) (Info, error) {
	ref, rel, err := splitOCI(p)
	if err != nil {
		return Info{}, err
	}
	snap, err := o.snapshot(ctx, ref)
	if err != nil {
		return Info{}, err
	}
	if snap.Has(rel) {
		data, err := snap.ReadFile(ctx, rel)
		if err != nil {
			return Info{}, err
		}
		return Info{Name: path.Base(rel), Size: int64(len(data))}, nil
	}
	if _, ok := children(snap, rel); ok {
		name := path.Base(rel)
		if rel == "" {
			name = ref
		}
		return Info{Name: name, IsDir: true}, nil
	}
	return Info{}, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

func (o *OCI) ReadFile(ctx context.Context, p string) ([]byte, error) {
	ref, rel, err := splitOCI(p)
	if err != nil {
		return nil, err
	}
	snap, err := o.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	return snap.ReadFile(ctx, rel)
}

func (o *OCI) Join(base string, elem ...string) string {
	ref, rel, err := splitOCI(base)
	if err != nil {
		return base
	}
	joined := path.Join(append([]string{rel}, elem...)...)
	if joined == "" || joined == "." {
		return ociPrefix + ref
	}
	return ociPrefix + ref + refSep + joined
}
