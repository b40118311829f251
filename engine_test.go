package amber

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/amber/internal/ident"
	reg "github.com/aweris/amber/internal/registry"
	"github.com/aweris/amber/internal/remote"
	"github.com/aweris/amber/internal/repository"
	"github.com/aweris/amber/internal/scheduler"
	"github.com/aweris/amber/internal/source"
	"github.com/aweris/amber/internal/store"
)

const (
	repoHex  = "0102030405060708"
	entryHex = "a1a2a3a4a5a6a7a8"
	v1Hex    = "11111111111111111111111111111111"
	v2Hex    = "22222222222222222222222222222222"
	r1Hex    = "33333333333333333333333333333333"
	r2Hex    = "44444444444444444444444444444444"
)

const oakDescriptor = `{
  "version": "1.0.1",
  "uuid": "` + repoHex + `",
  "tags": {"wood": 3, "pbr": 1, "oak": 3},
  "entries": {
    "` + entryHex + `": {
      "name": "Oak",
      "description": "oak planks",
      "file_type": "IMAGE",
      "blen_type": "IMAGE",
      "tags": ["wood", "pbr"],
      "variant_default": "` + v1Hex + `",
      "variants": {
        "` + v1Hex + `": {
          "name": "4k",
          "description": "",
          "revision_default": "` + r1Hex + `",
          "revisions": {
            "` + r1Hex + `": {"comment": "first", "path": "oak/4k_r1.png", "size": 10, "timestamp": 100.5},
            "` + r2Hex + `": {"comment": "second", "path": "oak/4k_r2.png", "size": 20, "timestamp": 200}
          }
        },
        "` + v2Hex + `": {
          "name": "1k",
          "description": "",
          "revision_default": "` + r2Hex + `",
          "revisions": {
            "` + r2Hex + `": {"comment": "", "path": "oak/1k.png", "size": 5, "timestamp": 50}
          }
        }
      }
    }
  }
}`

func mustHex(t *testing.T, s string) ident.ID {
	t.Helper()
	id, err := ident.ParseHex(s)
	require.NoError(t, err)
	return id
}

func oakEntryID(t *testing.T) ident.ID {
	asset := mustHex(t, entryHex)
	return ident.Compose(mustHex(t, repoHex), asset[:8])
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	previews, err := store.NewMemoryStore(64)
	require.NoError(t, err)
	defaults := []Option{
		WithDataDir(t.TempDir()),
		WithSource(source.NewLocal()),
		WithRegistry(reg.NewMemory()),
		WithPreviewStore(previews),
	}
	e, err := New(append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

// mkdirs creates directories below a new temp dir.
func mkdirs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, n), 0755))
	}
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

// writeBuiltRepo builds a descriptor for the files and writes it next to
// them.
func writeBuiltRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		writeFile(t, dir, rel, content)
	}
	repo, err := repository.Build(context.Background(), dir, repository.BuildOptions{})
	require.NoError(t, err)
	data, err := repository.Encode(repo)
	require.NoError(t, err)
	writeFile(t, dir, repository.DescriptorName, string(data))
	return dir
}

// pollList polls List until the job stops running and returns its id along
// with every progress value observed.
func pollList(t *testing.T, e *Engine, p string) (JobID, []float64) {
	t.Helper()
	job := e.List(0, p)
	var progress []float64
	require.Eventually(t, func() bool {
		job = e.List(job, p)
		progress = append(progress, e.Progress(job))
		return !e.Status(job).IsRunning()
	}, 5*time.Second, time.Millisecond)
	return job, progress
}

func jobOf(t *testing.T, e *Engine, id JobID) Job {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	require.True(t, ok, "job %d not found", id)
	return job
}

func rowNames(rows []Entry) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.RelPath == ParentDir {
			names = append(names, ParentDir)
			continue
		}
		names = append(names, r.Name)
	}
	return names
}

func TestNew_RejectsZeroWorkers(t *testing.T) {
	_, err := New(WithWorkers(0), WithRegistry(reg.NewMemory()))
	assert.ErrorIs(t, err, scheduler.ErrPoolSize)
}

func TestList_PlainDirectory(t *testing.T) {
	e := newTestEngine(t)
	dir := mkdirs(t, "b", "a.txt")
	writeFile(t, dir, "c.png", "not a dir")

	job, _ := pollList(t, e, dir)
	assert.Equal(t, StatusValid, e.Status(job))
	assert.Equal(t, 1.0, e.Progress(job))
	assert.False(t, e.IsRepository())
	assert.Equal(t, 3, e.Count())
	assert.Empty(t, e.Tags())

	assert.True(t, e.SortFilter(false, true, FilterParams{}))
	assert.Equal(t, 3, e.FilteredCount())
	rows := e.EntriesBlock(0, 10)
	assert.Equal(t, []string{"..", "a.txt", "b"}, rowNames(rows))
	for _, r := range rows {
		assert.Equal(t, TypeDir, r.Type)
		assert.False(t, r.ID.IsZero())
		v, rev := r.Active()
		assert.NotNil(t, v)
		assert.NotNil(t, rev)
	}
}

func TestList_IdempotentAfterDone(t *testing.T) {
	e := newTestEngine(t)
	dir := mkdirs(t, "x", "y")

	job, _ := pollList(t, e, dir)
	e.SortFilter(true, true, FilterParams{})
	before := e.EntriesBlock(0, 10)

	for range 5 {
		assert.Equal(t, job, e.List(job, dir))
	}
	assert.Equal(t, StatusValid, e.Status(job))
	assert.Equal(t, 1.0, e.Progress(job))
	assert.Equal(t, 3, e.Count())
	e.SortFilter(true, true, FilterParams{})
	assert.Equal(t, before, e.EntriesBlock(0, 10))
}

func TestList_BadDescriptorFallsBackToDirectories(t *testing.T) {
	descriptors := map[string]string{
		"not json":            "{",
		"missing entries":     `{"version": "1.0.1", "uuid": "` + repoHex + `"}`,
		"unsupported version": strings.Replace(oakDescriptor, "1.0.1", "2.0.0", 1),
		"dangling variant default": strings.Replace(oakDescriptor,
			`"variant_default": "`+v1Hex, `"variant_default": "99999999999999999999999999999999`, 1),
		"dangling revision default": strings.Replace(oakDescriptor,
			`"revision_default": "`+r1Hex, `"revision_default": "99999999999999999999999999999999`, 1),
	}
	for name, desc := range descriptors {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t)
			dir := mkdirs(t, "a.txt", "b")
			writeFile(t, dir, repository.DescriptorName, desc)

			job, _ := pollList(t, e, dir)
			assert.Equal(t, StatusValid, e.Status(job))
			assert.False(t, e.IsRepository())

			e.SortFilter(true, true, FilterParams{})
			assert.Equal(t, []string{"..", "a.txt", "b"}, rowNames(e.EntriesBlock(0, 10)))
			_, err := e.EntryByIdentifier(oakEntryID(t), ident.Zero, ident.Zero)
			assert.ErrorIs(t, err, ErrNoRepository)
		})
	}
}

func TestList_Repository(t *testing.T) {
	roots := reg.NewMemory()
	e := newTestEngine(t, WithRegistry(roots))
	dir := mkdirs(t, "oak")
	writeFile(t, dir, repository.DescriptorName, oakDescriptor)

	job, _ := pollList(t, e, dir)
	assert.Equal(t, StatusValid, e.Status(job))
	assert.Equal(t, 1.0, e.Progress(job))
	require.True(t, e.IsRepository())
	assert.Equal(t, 1, e.Count())

	root, ok := roots.Get(ident.RepositoryKey(mustHex(t, repoHex)))
	require.True(t, ok)
	assert.Equal(t, dir, root)

	assert.Equal(t, []Tag{
		{Name: "oak", Priority: 3},
		{Name: "wood", Priority: 3},
		{Name: "pbr", Priority: 1},
	}, e.Tags())

	e.SortFilter(true, true, FilterParams{})
	assert.Equal(t, 2, e.FilteredCount())
	rows := e.EntriesBlock(0, 2)
	require.Len(t, rows, 2)
	assert.Equal(t, ParentDir, rows[0].RelPath)
	assert.Equal(t, TypeDir, rows[0].Type)

	oak := rows[1]
	assert.Equal(t, "Oak", oak.Name)
	assert.Equal(t, "oak/4k_r1.png", oak.RelPath)
	require.Len(t, oak.Variants, 2)
	v, r := oak.Active()
	require.NotNil(t, r)
	assert.Equal(t, "4k", v.Name)
	assert.Equal(t, mustHex(t, r1Hex), r.ID)
	assert.Len(t, v.Revisions, 2)

	assert.Equal(t, []string{"Oak"}, rowNames(e.EntriesBlock(1, 2)))
	assert.Empty(t, e.EntriesBlock(5, 9))
}

func TestEntryByIdentifier(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	writeFile(t, dir, repository.DescriptorName, oakDescriptor)
	pollList(t, e, dir)
	id := oakEntryID(t)

	row, err := e.EntryByIdentifier(id, ident.Zero, ident.Zero)
	require.NoError(t, err)
	assert.Equal(t, "oak/4k_r1.png", row.RelPath)
	assert.Len(t, row.Variants, 2)

	row, err = e.EntryByIdentifier(id, mustHex(t, v2Hex), ident.Zero)
	require.NoError(t, err)
	assert.Equal(t, "oak/1k.png", row.RelPath)
	require.Len(t, row.Variants, 1)
	assert.Equal(t, "1k", row.Variants[0].Name)

	row, err = e.EntryByIdentifier(id, ident.Zero, mustHex(t, r2Hex))
	require.NoError(t, err)
	assert.Equal(t, "oak/4k_r2.png", row.RelPath)
	_, r := row.Active()
	require.NotNil(t, r)
	assert.Equal(t, "second", r.Comment)
	assert.True(t, time.Unix(200, 0).Equal(r.Time))

	_, err = e.EntryByIdentifier(mustHex(t, v1Hex), ident.Zero, ident.Zero)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.EntryByIdentifier(id, mustHex(t, r1Hex), ident.Zero)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRealize_UnresolvableEntryKeepsRow(t *testing.T) {
	entry := &repository.Entry{
		ID:             oakEntryID(t),
		Name:           "Oak",
		FileType:       "IMAGE",
		Variants:       map[ident.ID]*repository.Variant{},
		DefaultVariant: mustHex(t, v1Hex),
	}
	_, err := realize(entry, ident.Zero, ident.Zero)
	require.Error(t, err)

	row := bareRow(entry)
	assert.Equal(t, "Oak", row.Name)
	assert.Empty(t, row.RelPath)
	assert.Equal(t, -1, row.ActiveVariant)
}

// blockingSource lists fixed names and blocks every Stat until cancelled.
type blockingSource struct {
	names   []string
	started atomic.Int32
	stopped atomic.Int32
}

func (s *blockingSource) ReadDir(context.Context, string) ([]string, error) {
	return s.names, nil
}

func (s *blockingSource) Stat(ctx context.Context, _ string) (source.Info, error) {
	s.started.Add(1)
	defer s.stopped.Add(1)
	<-ctx.Done()
	return source.Info{}, ctx.Err()
}

func (s *blockingSource) ReadFile(context.Context, string) ([]byte, error) {
	return nil, fs.ErrNotExist
}

func (s *blockingSource) Join(base string, elem ...string) string {
	return path.Join(append([]string{base}, elem...)...)
}

func TestCancel_DrainsInFlightStats(t *testing.T) {
	src := &blockingSource{names: []string{"a", "b", "c"}}
	e := newTestEngine(t, WithSource(src))

	id := e.List(0, "/blocked")
	job := jobOf(t, e, id)
	require.Eventually(t, func() bool {
		e.List(id, "/blocked")
		return job.Tracked() == 4
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, StatusValid|StatusRunning, e.Status(id))

	job.Cancel()
	assert.Equal(t, 0, job.Tracked())
	assert.Equal(t, StatusValid, job.Status())
	assert.Equal(t, StatusValid, e.Status(id))

	require.Eventually(t, func() bool { return src.stopped.Load() == src.started.Load() }, 5*time.Second, time.Millisecond)

	// Polling a cancelled job keeps it idle and merges nothing.
	assert.Equal(t, id, e.List(id, "/blocked"))
	assert.Equal(t, StatusValid, e.Status(id))
	assert.Equal(t, 0, e.Count())

	e.Kill(id)
	assert.Equal(t, Status(0), e.Status(id))
	assert.Equal(t, 0, e.Jobs())

	// The killed path stays current, so relisting it starts nothing.
	assert.Equal(t, JobID(0), e.List(0, "/blocked"))
	assert.Equal(t, 0, e.Jobs())
}

func TestList_NewPathReplacesJob(t *testing.T) {
	src := &blockingSource{names: []string{"a"}}
	e := newTestEngine(t, WithSource(src))

	first := e.List(0, "/one")
	require.Eventually(t, func() bool {
		e.List(first, "/one")
		return src.started.Load() == 2
	}, 5*time.Second, time.Millisecond)

	second := e.List(first, "/two")
	assert.NotEqual(t, first, second)
	assert.Equal(t, Status(0), e.Status(first))
	assert.True(t, e.Status(second).IsRunning())
	assert.Equal(t, "/two", e.Root())
	assert.Equal(t, 1, e.Jobs())

	require.Eventually(t, func() bool { return src.stopped.Load() == 2 }, 5*time.Second, time.Millisecond)

	// An unknown id for the current path is returned unchanged.
	assert.Equal(t, JobID(99), e.List(99, "/two"))
	assert.Equal(t, 1, e.Jobs())
}

// gatedSource lets one Stat through per token.
type gatedSource struct {
	*source.Local
	gate chan struct{}
}

func (s *gatedSource) Stat(ctx context.Context, p string) (source.Info, error) {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return source.Info{}, ctx.Err()
	}
	return s.Local.Stat(ctx, p)
}

func TestProgress_Monotonic(t *testing.T) {
	names := make([]string, 20)
	for i := range names {
		names[i] = "dir" + string(rune('a'+i))
	}
	dir := mkdirs(t, names...)
	src := &gatedSource{Local: source.NewLocal(), gate: make(chan struct{}, len(names)+1)}
	e := newTestEngine(t, WithSource(src))

	job := e.List(0, dir)
	var progress []float64
	tokens := 0
	require.Eventually(t, func() bool {
		if tokens < cap(src.gate) {
			src.gate <- struct{}{}
			tokens++
		}
		job = e.List(job, dir)
		progress = append(progress, e.Progress(job))
		return !e.Status(job).IsRunning()
	}, 10*time.Second, time.Millisecond)

	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards at poll %d", i)
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])
	assert.Equal(t, len(names)+1, e.Count())
}

func TestSessionStatusAndProgress(t *testing.T) {
	src := &blockingSource{names: []string{"a", "b"}}
	e := newTestEngine(t, WithSource(src))

	assert.Equal(t, StatusValid, e.Status(0))
	assert.Equal(t, 0.0, e.Progress(0))
	assert.Equal(t, Status(0), e.Status(42))
	assert.Equal(t, 0.0, e.Progress(42))

	id := e.List(0, "/x")
	assert.Equal(t, StatusValid, e.Status(0))
	assert.Equal(t, e.Progress(id), e.Progress(0))

	e.Kill(0)
	assert.Equal(t, 0, e.Jobs())
	assert.Equal(t, 0.0, e.Progress(0))
}

func TestSortFilter_Directories(t *testing.T) {
	e := newTestEngine(t)
	dir := mkdirs(t, ".hidden", "beta", "Alpha")
	pollList(t, e, dir)

	assert.False(t, e.SortFilter(false, false, FilterParams{}))

	e.SortFilter(true, true, FilterParams{})
	assert.Equal(t, []string{"..", "Alpha", "beta"}, rowNames(e.EntriesBlock(0, 10)))

	e.SortFilter(true, true, FilterParams{ShowHidden: true})
	assert.Equal(t, []string{"..", ".hidden", "Alpha", "beta"}, rowNames(e.EntriesBlock(0, 10)))
	assert.Equal(t, 4, e.FilteredCount())

	e.SortFilter(true, true, FilterParams{Search: "eta"})
	assert.Equal(t, []string{"beta"}, rowNames(e.EntriesBlock(0, 10)))
	assert.Equal(t, []string{"beta"}, rowNames(e.EntriesBlock(-3, 100)))
}

func TestSortFilter_RepositoryAndTags(t *testing.T) {
	e := newTestEngine(t)
	dir := writeBuiltRepo(t, map[string]string{
		"wood/oak.png":      "oak",
		"wood/pine.png":     "p",
		"metal/iron.blend":  "ir",
		"wood/.hidden.png":  "skipped by build",
		"metal/readme.none": "untyped",
	})
	pollList(t, e, dir)
	require.True(t, e.IsRepository())
	assert.Equal(t, 4, e.Count())

	names := func() []string { return rowNames(e.EntriesBlock(1, e.FilteredCount())) }

	e.SortFilter(true, true, FilterParams{})
	assert.Equal(t, []string{"iron", "oak", "pine", "readme"}, names())
	assert.Equal(t, 5, e.FilteredCount())

	e.SortFilter(true, true, FilterParams{Sort: SortSize})
	assert.Equal(t, []string{"pine", "iron", "oak", "readme"}, names())

	all := []string{"IMAGE", "BLENDER"}
	e.SortFilter(true, true, FilterParams{UseFilter: true, FileTypes: []string{"IMAGE"}})
	assert.Equal(t, []string{"oak", "pine"}, names())

	require.NoError(t, e.SetTagFilter("metal", true, false))
	e.SortFilter(true, true, FilterParams{UseFilter: true, FileTypes: all})
	assert.Equal(t, []string{"iron"}, names())

	require.NoError(t, e.SetTagFilter("metal", false, true))
	e.SortFilter(true, true, FilterParams{UseFilter: true, FileTypes: all})
	assert.Equal(t, []string{"oak", "pine"}, names())

	// Tags only apply with UseFilter.
	e.SortFilter(true, true, FilterParams{Search: "i"})
	assert.Equal(t, []string{"iron", "pine"}, names())

	assert.ErrorIs(t, e.SetTagFilter("metal", true, true), ErrTagConflict)
	assert.ErrorIs(t, e.SetTagFilter("stone", true, false), ErrUnknownTag)

	for _, tag := range e.Tags() {
		if tag.Name == "metal" {
			assert.True(t, tag.Exclude)
			assert.False(t, tag.Include)
		}
	}
}

func TestUpdateCheckAndRealize(t *testing.T) {
	ctx := context.Background()
	roots := reg.NewMemory()
	e := newTestEngine(t, WithRegistry(roots))
	dir := t.TempDir()
	writeFile(t, dir, repository.DescriptorName, oakDescriptor)
	pollList(t, e, dir)

	known := AssetRef{Entry: oakEntryID(t), Variant: mustHex(t, v2Hex), Revision: mustHex(t, r2Hex)}
	unknown := AssetRef{Entry: ident.Compose(mustHex(t, "ffffffffffffffff"), []byte("asset123"))}

	refs := e.UpdateCheck(ctx, []AssetRef{known, unknown})
	require.Len(t, refs, 2)
	assert.True(t, refs[0].Reload)
	assert.False(t, refs[0].Missing)
	assert.True(t, refs[1].Missing)

	rows, err := e.Realize(ctx, []AssetRef{known})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, filepath.Join(dir, "oak", "1k.png"), rows[0].RelPath)
	v, r := rows[0].Active()
	require.NotNil(t, r)
	assert.Equal(t, "1k", v.Name)
	assert.Equal(t, int64(5), r.Size)

	_, err = e.Realize(ctx, []AssetRef{unknown})
	assert.ErrorIs(t, err, ErrUnknownRepository)

	// A second engine sharing the registry reads the descriptor from disk.
	other := newTestEngine(t, WithRegistry(roots))
	rows, err = other.Realize(ctx, []AssetRef{{Entry: oakEntryID(t)}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "oak", "4k_r1.png"), rows[0].RelPath)

	require.NoError(t, os.Remove(filepath.Join(dir, repository.DescriptorName)))
	refs = other.UpdateCheck(ctx, []AssetRef{known})
	assert.True(t, refs[0].Missing)
	assert.False(t, refs[0].Reload)
}

func findRow(t *testing.T, rows []Entry, name string) Entry {
	t.Helper()
	for _, r := range rows {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no row named %q", name)
	return Entry{}
}

func TestPreviews(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	dir := writeBuiltRepo(t, map[string]string{
		"wood/oak.png":         "oak texture",
		"wood/oak.png.preview": "oak thumb",
		"wood/pine.png":        "pine texture",
	})
	pollList(t, e, dir)
	e.SortFilter(true, true, FilterParams{})
	rows := e.EntriesBlock(0, e.FilteredCount())
	oak := findRow(t, rows, "oak").ID
	pine := findRow(t, rows, "pine").ID

	ids := []ident.ID{oak, pine}
	job := e.Previews(0, ids)
	require.Eventually(t, func() bool {
		job = e.Previews(job, ids)
		return !e.Status(job).IsRunning()
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 1.0, e.Progress(job))

	data, ok := e.Preview(ctx, oak)
	require.True(t, ok)
	assert.Equal(t, "oak thumb", string(data))
	_, ok = e.Preview(ctx, pine)
	assert.False(t, ok)

	// Asking for nothing completes immediately.
	job = e.Previews(job, nil)
	assert.Equal(t, StatusValid, e.Status(job))
	assert.Equal(t, 1.0, e.Progress(job))

	// Listing another path drops the preview job.
	pollList(t, e, t.TempDir())
	assert.Equal(t, Status(0), e.Status(job))
}

// lookupFailingStore fails every Has but stores and serves previews.
type lookupFailingStore struct {
	store.Store
}

func (lookupFailingStore) Has(context.Context, ident.ID) (bool, error) {
	return false, errors.New("index unavailable")
}

func TestPreviews_LookupErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	mem, err := store.NewMemoryStore(8)
	require.NoError(t, err)
	e := newTestEngine(t, WithPreviewStore(lookupFailingStore{Store: mem}))
	dir := writeBuiltRepo(t, map[string]string{
		"wood/oak.png":         "oak texture",
		"wood/oak.png.preview": "oak thumb",
	})
	pollList(t, e, dir)
	e.SortFilter(true, true, FilterParams{})
	oak := findRow(t, e.EntriesBlock(0, e.FilteredCount()), "oak").ID

	ids := []ident.ID{oak}
	job := e.Previews(0, ids)
	require.Eventually(t, func() bool {
		job = e.Previews(job, ids)
		return !e.Status(job).IsRunning()
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 1.0, e.Progress(job))

	data, ok := e.Preview(ctx, oak)
	require.True(t, ok)
	assert.Equal(t, "oak thumb", string(data))
}

func TestList_OCIRepository(t *testing.T) {
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)

	dir := writeBuiltRepo(t, map[string]string{
		"wood/oak.png":  "oak",
		"wood/pine.png": "pine",
	})
	ref := strings.TrimPrefix(srv.URL, "http://") + "/amber/wood:v1"
	r, err := remote.NewOCIRemote(ref, remote.StaticAuthenticator{})
	require.NoError(t, err)
	_, err = r.Publish(context.Background(), dir)
	require.NoError(t, err)

	previews, err := store.NewMemoryStore(8)
	require.NoError(t, err)
	e, err := New(
		WithDataDir(t.TempDir()),
		WithRegistry(reg.NewMemory()),
		WithPreviewStore(previews),
		WithAuth(remote.StaticAuthenticator{}),
	)
	require.NoError(t, err)
	defer e.Close()

	root := "oci://" + ref
	pollList(t, e, root)
	require.True(t, e.IsRepository())
	assert.Equal(t, 2, e.Count())

	e.SortFilter(true, true, FilterParams{})
	oak := findRow(t, e.EntriesBlock(0, e.FilteredCount()), "oak")
	rows, err := e.Realize(context.Background(), []AssetRef{{Entry: oak.ID}})
	require.NoError(t, err)
	assert.Equal(t, root+"//wood/oak.png", rows[0].RelPath)
}

func TestClose(t *testing.T) {
	e, err := New(WithDataDir(t.TempDir()), WithSource(&blockingSource{names: []string{"a"}}))
	require.NoError(t, err)
	job := e.List(0, "/x")
	require.NotZero(t, job)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, JobID(0), e.List(job, "/x"))
	assert.Equal(t, JobID(0), e.Previews(0, nil))
	assert.Equal(t, 0, e.Jobs())
	_, err = e.Realize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "{VALID,RUNNING}", (StatusValid | StatusRunning).String())
	assert.Equal(t, "{VALID}", StatusValid.String())
	assert.Equal(t, "{}", Status(0).String())
}
