// Package scheduler advances background work in bounded increments driven
// by an external caller.
//
// A Loop belongs to one job and is only ever stepped from the caller's
// goroutine, so everything a step touches is serialized without locks.
// Blocking leaves (directory reads, stats, remote calls) run on a shared
// Pool; their completions are posted back to the loop and applied on the
// next Step.
package scheduler

import (
	"context"
	"errors"
)

// State is the lifecycle of a Task.
type State int

const (
	NotStarted State = iota
	Pending
	Ready
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Done reports whether the state is final.
func (s State) Done() bool { return s >= Ready }

// Handle is the type-erased view of a task kept in a loop's tracked set.
type Handle interface {
	State() State
	Done() bool
	Cancel()
}

// Task is the result of one blocking leaf. It is only read and mutated on the
// goroutine stepping its loop.
type Task[T any] struct {
	state  State
	value  T
	err    error
	cancel context.CancelFunc
}

func (t *Task[T]) State() State { return t.state }
func (t *Task[T]) Done() bool   { return t.state.Done() }

// Result returns the value of a Ready task. Other states return the zero
// value and an error describing the state.
func (t *Task[T]) Result() (T, error) {
	var zero T
	switch t.state {
	case Ready:
		return t.value, nil
	case Failed:
		return zero, t.err
	case Cancelled:
		return zero, context.Canceled
	}
	return zero, errNotDone
}

// Cancel signals the running leaf and marks the task Cancelled. A completion
// arriving afterwards is dropped.
func (t *Task[T]) Cancel() {
	if t.state.Done() {
		return
	}
	t.state = Cancelled
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Task[T]) complete(v T, err error) {
	if t.state != Pending {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	if err != nil {
		t.state = Failed
		t.err = err
		return
	}
	t.state = Ready
	t.value = v
}

var errNotDone = errors.New("scheduler: task not done")

// Go starts fn on the loop's pool and tracks the returned task. fn receives a
// context cancelled by Task.Cancel or by the parent ctx. When the pool is
// closed the task fails immediately.
func Go[T any](l *Loop, ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{state: Pending, cancel: cancel}
	l.track(t)

	err := l.pool.Submit(func() {
		var (
			v   T
			err error
		)
		if err = tctx.Err(); err == nil {
			v, err = fn(tctx)
		}
		l.post(func() { t.complete(v, err) })
	})
	if err != nil {
		t.complete(*new(T), err)
	}
	return t
}
