package amber

import (
	"context"
	"log/slog"

	"github.com/aweris/amber/internal/scheduler"
)

// JobID identifies a job within one engine. Zero means "no job": the
// aggregate session view in Status, Progress and Kill.
type JobID uint64

// Job is a cancellable, progress-reporting unit of background work.
type Job interface {
	ID() JobID
	Status() Status
	Progress() float64
	// Cancel stops the job's work. The job stays valid but not running.
	Cancel()
	// Tracked returns the number of in-flight operations.
	Tracked() int
}

// baseJob owns a private loop stepped only from its update methods.
type baseJob struct {
	id       JobID
	loop     *scheduler.Loop
	ctx      context.Context
	cancel   context.CancelFunc
	status   Status
	progress float64
	log      *slog.Logger
}

func newBaseJob(id JobID, pool *scheduler.Pool, log *slog.Logger) baseJob {
	ctx, cancel := context.WithCancel(context.Background())
	return baseJob{
		id:     id,
		loop:   scheduler.NewLoop(pool),
		ctx:    ctx,
		cancel: cancel,
		status: StatusValid,
		log:    log.With("job_id", uint64(id)),
	}
}

func (j *baseJob) ID() JobID         { return j.id }
func (j *baseJob) Status() Status    { return j.status }
func (j *baseJob) Progress() float64 { return j.progress }
func (j *baseJob) Tracked() int      { return j.loop.Tracked() }

func (j *baseJob) cancelled() bool { return j.ctx.Err() != nil }

// step advances the private loop by one increment, applying the
// completions that arrived since the previous call.
func (j *baseJob) step() {
	if err := j.loop.Step(); err != nil {
		j.log.Debug("step skipped", "error", err)
	}
}

// setProgress never lets progress move backwards.
func (j *baseJob) setProgress(p float64) {
	if p > 1 {
		p = 1
	}
	if p > j.progress {
		j.progress = p
	}
}

// Cancel signals the job, cancels and drops every tracked operation,
// resets the status and pumps the loop once more so leaves observe the
// cancellation before the job is dropped.
func (j *baseJob) Cancel() {
	j.cancel()
	j.loop.CancelAll()
	j.status = StatusValid
	j.step()
}
