package amber

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/aweris/amber/internal/compression"
	"github.com/aweris/amber/internal/ident"
	"github.com/aweris/amber/internal/logger"
	"github.com/aweris/amber/internal/registry"
	"github.com/aweris/amber/internal/remote"
	"github.com/aweris/amber/internal/repository"
	"github.com/aweris/amber/internal/scheduler"
	"github.com/aweris/amber/internal/source"
	"github.com/aweris/amber/internal/store"
)

// Engine serves listings of asset repositories to a host that polls it.
// Every method is safe for concurrent use; calls are serialized.
type Engine struct {
	mu       sync.Mutex
	pool     *scheduler.Pool
	src      Source
	registry Registry
	previews PreviewStore
	log      *slog.Logger
	session  string
	closed   bool

	jobs   map[JobID]Job
	nextID JobID

	listing repository.Listing
	view    view
	// repos caches every repository seen this session, by registry key.
	repos map[ident.ID]*repository.Repository
	tags  []Tag
}

// New creates an engine. Failing to start the worker pool or to load the
// registry is fatal.
func New(opts ...Option) (*Engine, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	pool, err := scheduler.NewPool(options.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	session := uuid.NewString()
	log := options.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("session", session)

	e := &Engine{
		pool:     pool,
		src:      options.Source,
		registry: options.Registry,
		previews: options.PreviewStore,
		log:      log,
		session:  session,
		jobs:     make(map[JobID]Job),
		nextID:   1,
		repos:    make(map[ident.ID]*repository.Repository),
	}

	dataDir := expandPath(options.DataDir)
	if e.src == nil {
		auth := options.Auth
		if auth == nil {
			auth = remote.NewKeychainAuthenticator()
		}
		mux := source.NewMux(source.NewLocal())
		mux.Handle(source.OCIScheme, source.NewOCI(source.DefaultOpener(auth)))
		e.src = mux
	}
	if e.registry == nil {
		e.registry = registry.NewFile(filepath.Join(dataDir, RegistryFile))
	}
	if err := e.registry.Load(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if e.previews == nil {
		previews, err := store.NewLocalStore(dataDir, store.DefaultCacheSize, compression.LevelDefault, true)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("create preview store: %w", err)
		}
		e.previews = previews
	}

	e.log.Debug("engine started", "workers", pool.Size(), "data_dir", dataDir)
	return e, nil
}

// Session returns the identifier attached to every log record of the
// engine.
func (e *Engine) Session() string { return e.session }

func (e *Engine) newJobID() JobID {
	id := e.nextID
	e.nextID++
	return id
}

// reset cancels every job and forgets the current listing.
func (e *Engine) reset() {
	for id, job := range e.jobs {
		job.Cancel()
		delete(e.jobs, id)
	}
	e.listing.Reset()
	e.view.reset()
}

// List lists path and returns the id of the job doing it. Passing the id
// returned by a previous call for the same path advances that job by one
// increment. A different path, or an unknown id for a path other than the
// current one, discards every job and starts over under a fresh id.
//
// An unknown id for the current path returns that id and starts nothing.
// After Kill on the current listing, List of the same path therefore returns
// 0; list a different path first to list it again.
func (e *Engine) List(jobID JobID, path string) JobID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}

	job, ok := e.jobs[jobID].(*listJob)
	switch {
	case ok && job.root == path:
		job.update(&e.listing)
	case ok || e.listing.Root != path:
		e.reset()
		jobID = e.newJobID()
		e.jobs[jobID] = newListJob(jobID, path, e.src, e.pool, e.log)
		e.listing.Root = path
	}

	if e.listing.IsRepository() {
		e.rememberRepository(e.listing.Repository, e.listing.Root)
	} else {
		e.tags = nil
	}
	return jobID
}

// rememberRepository records the repository's root, caches it and syncs the
// tag list with the descriptor.
func (e *Engine) rememberRepository(repo *repository.Repository, root string) {
	key := repo.Key()
	if e.registry.Set(key, root) {
		if err := e.registry.Save(context.Background()); err != nil {
			e.log.Warn("cannot save repository registry", "error", err)
		}
	}
	e.repos[key] = repo

	tags := make([]Tag, 0, len(repo.Tags))
	for name, priority := range repo.Tags {
		tag := Tag{Name: name, Priority: priority}
		if i := slices.IndexFunc(e.tags, func(t Tag) bool { return t.Name == name }); i >= 0 {
			tag.Include = e.tags[i].Include
			tag.Exclude = e.tags[i].Exclude
		}
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, func(a, b Tag) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	e.tags = tags
}

// Status returns the status of a job. Zero asks for the session, which is
// always valid; an unknown job has no flags.
func (e *Engine) Status(jobID JobID) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if jobID == 0 {
		return StatusValid
	}
	if job, ok := e.jobs[jobID]; ok {
		return job.Status()
	}
	return 0
}

// Progress returns the progress of a job, or for zero the mean progress of
// the running jobs.
func (e *Engine) Progress(jobID JobID) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if jobID != 0 {
		if job, ok := e.jobs[jobID]; ok {
			return job.Progress()
		}
		return 0
	}

	var sum float64
	var running int
	for _, job := range e.jobs {
		if job.Status().IsRunning() {
			sum += job.Progress()
			running++
		}
	}
	if running == 0 {
		return 0
	}
	return sum / float64(running)
}

// Kill cancels and drops a job, or every job for zero.
func (e *Engine) Kill(jobID JobID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if jobID != 0 {
		if job, ok := e.jobs[jobID]; ok {
			job.Cancel()
			delete(e.jobs, jobID)
		}
		return
	}
	for id, job := range e.jobs {
		job.Cancel()
		delete(e.jobs, id)
	}
}

// Jobs returns the number of live jobs.
func (e *Engine) Jobs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

// Root returns the path of the current listing.
func (e *Engine) Root() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listing.Root
}

// IsRepository reports whether the current listing is a repository.
func (e *Engine) IsRepository() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listing.IsRepository()
}

// Count returns the number of rows of the current listing, before
// filtering.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listing.Len()
}

// SortFilter rebuilds the view from the listing when useFilter is set, and
// sorts it when useSort is set or the view was rebuilt. It reports whether
// the view was sorted.
func (e *Engine) SortFilter(useSort, useFilter bool, params FilterParams) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if useFilter {
		e.view.reset()
		switch {
		case e.listing.IsRepository():
			include := make(map[string]bool)
			exclude := make(map[string]bool)
			for _, t := range e.tags {
				if t.Include {
					include[t.Name] = true
				}
				if t.Exclude {
					exclude[t.Name] = true
				}
			}
			e.view.entries = filterEntries(e.listing.Repository, params, include, exclude)
		case len(e.listing.Dirs) > 0:
			e.view.dirs = filterDirs(e.listing.Dirs, params)
		}
		useSort = true
	}
	if !useSort {
		return false
	}
	if e.listing.IsRepository() {
		sortEntries(e.view.entries, params.Sort)
	} else {
		sortDirs(e.view.dirs, params.Sort)
	}
	return true
}

// FilteredCount returns the number of rows EntriesBlock can serve. In
// repository mode this includes the parent row.
func (e *Engine) FilteredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listing.IsRepository() {
		return len(e.view.entries) + 1
	}
	return len(e.view.dirs)
}

// EntriesBlock returns the rows [start, end) of the view. In repository
// mode row 0 is the parent row and entries follow with every variant and
// revision listed. Out of range bounds are clamped.
func (e *Engine) EntriesBlock(start, end int) []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.listing.IsRepository() {
		start, end = clamp(start, end, len(e.view.dirs))
		rows := make([]Entry, 0, end-start)
		for _, d := range e.view.dirs[start:end] {
			rows = append(rows, dirRow(d))
		}
		return rows
	}

	var rows []Entry
	if start <= 0 && end > 0 {
		rows = append(rows, parentRow())
	}
	start, end = clamp(start-1, end-1, len(e.view.entries))
	for _, entry := range e.view.entries[start:end] {
		row, err := realize(entry, ident.Zero, ident.Zero)
		if err != nil {
			e.log.Debug("entry without default revision", "entry", entry.ID, "error", err)
			row = bareRow(entry)
		}
		rows = append(rows, row)
	}
	return rows
}

// EntryByIdentifier realizes one entry of the current repository. Zero
// variant or revision identifiers select every variant or revision, with
// the defaults active.
func (e *Engine) EntryByIdentifier(entryID, variantID, revisionID ident.ID) (Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listing.IsRepository() {
		return Entry{}, ErrNoRepository
	}
	entry, ok := e.listing.Repository.Entries[entryID]
	if !ok {
		return Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	row, err := realize(entry, variantID, revisionID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return row, nil
}

// Tags returns the tags of the current repository, highest priority first.
func (e *Engine) Tags() []Tag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tags)
}

// SetTagFilter sets whether entries must carry (include) or must not carry
// (exclude) a tag. The new filter applies on the next filtering SortFilter.
func (e *Engine) SetTagFilter(name string, include, exclude bool) error {
	if include && exclude {
		return ErrTagConflict
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.IndexFunc(e.tags, func(t Tag) bool { return t.Name == name })
	if i < 0 {
		return fmt.Errorf("%q: %w", name, ErrUnknownTag)
	}
	e.tags[i].Include = include
	e.tags[i].Exclude = exclude
	return nil
}

// UpdateCheck marks each reference whose repository is unregistered, or
// whose descriptor is gone, as Missing, and every other one as Reload.
func (e *Engine) UpdateCheck(ctx context.Context, refs []AssetRef) []AssetRef {
	out := slices.Clone(refs)
	for i := range out {
		out[i].Missing, out[i].Reload = false, false

		root, ok := e.registry.Get(ident.RepositoryKey(out[i].Entry))
		if !ok {
			out[i].Missing = true
			continue
		}
		exists, err := source.Exists(ctx, e.src, e.src.Join(root, repository.DescriptorName))
		if err != nil {
			e.log.Debug("cannot check descriptor", "root", root, "error", err)
		}
		if !exists {
			out[i].Missing = true
			continue
		}
		out[i].Reload = true
	}
	return out
}

// Realize resolves stored references into entries whose RelPath is the
// full path of the referenced revision. Repositories not seen this session
// are loaded from the registry.
func (e *Engine) Realize(ctx context.Context, refs []AssetRef) ([]Entry, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	rows := make([]Entry, 0, len(refs))
	for _, ref := range refs {
		key := ident.RepositoryKey(ref.Entry)
		root, ok := e.registry.Get(key)
		if !ok {
			return nil, fmt.Errorf("entry %s: %w", ref.Entry, ErrUnknownRepository)
		}
		repo, err := e.repository(ctx, key, root)
		if err != nil {
			return nil, err
		}

		entry, ok := repo.Entries[ref.Entry]
		if !ok {
			return nil, fmt.Errorf("entry %s: %w", ref.Entry, ErrNotFound)
		}
		row, err := realize(entry, ref.Variant, ref.Revision)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		row.RelPath = e.src.Join(root, row.RelPath)
		rows = append(rows, row)
	}
	return rows, nil
}

// repository returns a cached repository or reads its descriptor.
func (e *Engine) repository(ctx context.Context, key ident.ID, root string) (*repository.Repository, error) {
	e.mu.Lock()
	repo, ok := e.repos[key]
	e.mu.Unlock()
	if ok {
		return repo, nil
	}

	path := e.src.Join(root, repository.DescriptorName)
	data, err := e.src.ReadFile(ctx, path)
	if err != nil {
		return nil, &DescriptorError{Path: path, Err: err}
	}
	repo, err = repository.Decode(data)
	if err != nil {
		return nil, &DescriptorError{Path: path, Err: err}
	}

	e.mu.Lock()
	e.repos[key] = repo
	e.mu.Unlock()
	return repo, nil
}

// Previews fetches the previews of ids into the preview store. Like List,
// passing the id of a previous preview job advances it; the set of ids
// replaces the one of the previous call.
func (e *Engine) Previews(jobID JobID, ids []ident.ID) JobID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}

	job, ok := e.jobs[jobID].(*previewJob)
	if !ok {
		jobID = e.newJobID()
		job = newPreviewJob(jobID, e.src, e.previews, e.pool, e.log)
		e.jobs[jobID] = job
	}
	job.update(ids, e.previewPath)
	return jobID
}

// previewPath resolves the preview payload of the default revision of an
// entry from any repository seen this session.
func (e *Engine) previewPath(id ident.ID) (string, error) {
	key := ident.RepositoryKey(id)
	repo, ok := e.repos[key]
	if !ok {
		return "", fmt.Errorf("entry %s: %w", id, ErrUnknownRepository)
	}
	root, ok := e.registry.Get(key)
	if !ok {
		return "", fmt.Errorf("entry %s: %w", id, ErrUnknownRepository)
	}
	entry, ok := repo.Entries[id]
	if !ok {
		return "", fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	_, r, err := entry.Default()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if r.Preview == "" {
		return "", ErrNoPreview
	}
	return e.src.Join(root, r.Preview), nil
}

// Preview returns a fetched preview.
func (e *Engine) Preview(ctx context.Context, id ident.ID) ([]byte, bool) {
	data, err := e.previews.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Debug("cannot read preview", "entry", id, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Close cancels every job, stops the worker pool and closes the registry
// and the preview store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.reset()
	e.pool.Close()

	var errs []error
	if err := e.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	if c, ok := e.previews.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close preview store: %w", err))
		}
	}
	e.log.Debug("engine closed")
	return errors.Join(errs...)
}
