package amber

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/aweris/amber/internal/ident"
	"github.com/aweris/amber/internal/repository"
	"github.com/aweris/amber/internal/scheduler"
	"github.com/aweris/amber/internal/source"
)

// ParentDir is the row prepended to every plain listing.
const ParentDir = ".."

type listPhase int

const (
	phaseInit listPhase = iota
	phaseListing
	phaseDescriptor
	phaseStatting
	phaseDone
)

func (p listPhase) String() string {
	switch p {
	case phaseInit:
		return "init"
	case phaseListing:
		return "listing"
	case phaseDescriptor:
		return "descriptor"
	case phaseStatting:
		return "statting"
	case phaseDone:
		return "done"
	}
	return "unknown"
}

type statResult struct {
	name string
	info source.Info
}

// listJob lists one path. It reads the children, loads the descriptor when
// the path is a repository root, and otherwise stats every child to collect
// directory rows.
type listJob struct {
	baseJob
	root string
	src  source.Source

	phase    listPhase
	names    []string
	lsTask   *scheduler.Task[[]string]
	descTask *scheduler.Task[*repository.Repository]
	stats    map[*scheduler.Task[statResult]]struct{}

	// done counts harvested stats; it also numbers directory rows.
	done  int
	total int
}

func newListJob(id JobID, root string, src source.Source, pool *scheduler.Pool, log *slog.Logger) *listJob {
	j := &listJob{
		baseJob: newBaseJob(id, pool, log.With("path", root)),
		root:    root,
		src:     src,
		stats:   make(map[*scheduler.Task[statResult]]struct{}),
	}
	j.start()
	return j
}

func (j *listJob) start() {
	j.lsTask = scheduler.Go(j.loop, j.ctx, func(ctx context.Context) ([]string, error) {
		return j.src.ReadDir(ctx, j.root)
	})
	j.phase = phaseListing
	j.status = StatusValid | StatusRunning
	j.step()
}

// update advances the job by one increment and merges finished work into
// listing. It never blocks on a leaf.
func (j *listJob) update(listing *repository.Listing) {
	if j.cancelled() {
		j.Cancel()
		return
	}
	if j.phase == phaseDone {
		return
	}

	j.step()

	switch j.phase {
	case phaseListing:
		if !j.lsTask.Done() {
			return
		}
		j.harvestListing(listing)
	case phaseDescriptor:
		if !j.descTask.Done() {
			return
		}
		j.harvestDescriptor(listing)
	}

	if j.phase == phaseStatting {
		j.harvestStats(listing)
	}
}

func (j *listJob) harvestListing(listing *repository.Listing) {
	names, err := j.lsTask.Result()
	j.loop.Forget(j.lsTask)
	j.lsTask = nil
	if err != nil {
		j.log.Warn("cannot read directory", "error", err)
	}
	j.names = names

	if slices.Contains(names, repository.DescriptorName) {
		path := j.src.Join(j.root, repository.DescriptorName)
		j.descTask = scheduler.Go(j.loop, j.ctx, func(ctx context.Context) (*repository.Repository, error) {
			data, err := j.src.ReadFile(ctx, path)
			if err != nil {
				return nil, &DescriptorError{Path: path, Err: err}
			}
			repo, err := repository.Decode(data)
			if err != nil {
				return nil, &DescriptorError{Path: path, Err: err}
			}
			return repo, nil
		})
		j.phase = phaseDescriptor
		return
	}
	j.fanOut(listing, nil)
}

func (j *listJob) harvestDescriptor(listing *repository.Listing) {
	repo, err := j.descTask.Result()
	j.loop.Forget(j.descTask)
	j.descTask = nil
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		j.log.Log(j.ctx, level, "descriptor rejected, listing as plain directory", "error", err)
		repo = nil
	}
	j.fanOut(listing, repo)
}

// fanOut replaces the cached listing wholesale, then starts one stat per
// child unless a repository was loaded.
func (j *listJob) fanOut(listing *repository.Listing, repo *repository.Repository) {
	listing.Root = j.root
	listing.ClearRepository()
	listing.ClearDirs()
	j.phase = phaseStatting

	if repo != nil {
		listing.SetRepository(repo)
		j.log.Debug("repository loaded", "entries", len(repo.Entries))
		return
	}

	children := append([]string{ParentDir}, j.names...)
	j.total = len(children)
	for _, name := range children {
		path := j.src.Join(j.root, name)
		t := scheduler.Go(j.loop, j.ctx, func(ctx context.Context) (statResult, error) {
			info, err := j.src.Stat(ctx, path)
			return statResult{name: name, info: info}, err
		})
		j.stats[t] = struct{}{}
	}
}

func (j *listJob) harvestStats(listing *repository.Listing) {
	for t := range j.stats {
		if !t.Done() {
			continue
		}
		delete(j.stats, t)
		j.loop.Forget(t)
		j.done++

		res, err := t.Result()
		if err != nil {
			j.log.Debug("stat failed, dropping path", "error", err)
			continue
		}
		if !res.info.IsDir {
			continue
		}
		listing.AddDir(repository.Dir{
			Path:    res.name,
			Size:    res.info.Size,
			ModTime: res.info.ModTime,
			ID:      ident.Synthesize(res.name, uint32(j.done)),
		})
	}

	if j.total > 0 {
		j.setProgress(float64(j.done) / float64(j.total))
	}
	if len(j.stats) == 0 {
		j.phase = phaseDone
		j.setProgress(1)
		j.status = StatusValid
		j.log.Debug("listing done", "rows", listing.Len())
	}
}

func (j *listJob) Cancel() {
	j.baseJob.Cancel()
	j.lsTask = nil
	j.descTask = nil
	clear(j.stats)
}
