package amber

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aweris/amber/internal/ident"
	"github.com/aweris/amber/internal/scheduler"
	"github.com/aweris/amber/internal/source"
	"github.com/aweris/amber/internal/store"
)

// previewResolver maps an entry to the path of its preview payload. It runs
// on the stepping goroutine and must not block.
type previewResolver func(id ident.ID) (string, error)

// previewJob fetches entry previews into the preview store. Each update
// carries the full set of wanted entries: previews no longer wanted are
// cancelled, new ones are started.
type previewJob struct {
	baseJob
	src   source.Source
	store store.Store

	tasks map[ident.ID]*scheduler.Task[struct{}]
	done  map[ident.ID]bool
}

func newPreviewJob(id JobID, src source.Source, st store.Store, pool *scheduler.Pool, log *slog.Logger) *previewJob {
	return &previewJob{
		baseJob: newBaseJob(id, pool, log),
		src:     src,
		store:   st,
		tasks:   make(map[ident.ID]*scheduler.Task[struct{}]),
		done:    make(map[ident.ID]bool),
	}
}

func (j *previewJob) update(ids []ident.ID, resolve previewResolver) {
	if j.cancelled() {
		j.Cancel()
		return
	}
	j.step()
	j.status = StatusValid | StatusRunning

	wanted := make(map[ident.ID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for id, t := range j.tasks {
		if !wanted[id] {
			t.Cancel()
			j.loop.Forget(t)
			delete(j.tasks, id)
		}
	}

	for id := range wanted {
		if j.done[id] || j.tasks[id] != nil {
			continue
		}
		j.tasks[id] = j.fetch(id, resolve)
	}

	for id, t := range j.tasks {
		if !t.Done() {
			continue
		}
		if _, err := t.Result(); err != nil && !errors.Is(err, ErrNoPreview) {
			j.log.Debug("preview unavailable", "entry", id, "error", err)
		}
		j.loop.Forget(t)
		delete(j.tasks, id)
		j.done[id] = true
	}

	// Progress is recomputed from the wanted set, so it can drop when the
	// caller asks for more previews.
	if len(wanted) == 0 {
		j.progress = 1
	} else {
		n := 0
		for id := range wanted {
			if j.done[id] {
				n++
			}
		}
		j.progress = float64(n) / float64(len(wanted))
	}
	if len(j.tasks) == 0 {
		j.status = StatusValid
	}
}

func (j *previewJob) fetch(id ident.ID, resolve previewResolver) *scheduler.Task[struct{}] {
	path, err := resolve(id)
	return scheduler.Go(j.loop, j.ctx, func(ctx context.Context) (struct{}, error) {
		if err != nil {
			return struct{}{}, err
		}
		ok, err := j.store.Has(ctx, id)
		if err != nil {
			j.log.Debug("preview lookup failed", "entry", id, "error", err)
		} else if ok {
			return struct{}{}, nil
		}
		data, err := j.src.ReadFile(ctx, path)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, j.store.Put(ctx, id, data)
	})
}

func (j *previewJob) Cancel() {
	j.baseJob.Cancel()
	clear(j.tasks)
}
