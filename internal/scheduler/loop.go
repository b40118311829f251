package scheduler

import (
	"sync"
	"sync/atomic"
)

// Loop is a single-threaded cooperative executor stepped by its owner.
type Loop struct {
	pool *Pool

	mu    sync.Mutex
	inbox []func()
	soon  []func()

	stepping atomic.Bool
	steps    uint64
	tracked  map[Handle]struct{}
}

// NewLoop returns a loop whose leaves run on pool.
func NewLoop(pool *Pool) *Loop {
	return &Loop{pool: pool, tracked: make(map[Handle]struct{})}
}

// post is called by workers; it never blocks beyond the inbox mutex.
func (l *Loop) post(fn func()) {
	l.mu.Lock()
	l.inbox = append(l.inbox, fn)
	l.mu.Unlock()
}

// CallSoon queues fn to run during the next Step.
func (l *Loop) CallSoon(fn func()) {
	l.mu.Lock()
	l.soon = append(l.soon, fn)
	l.mu.Unlock()
}

// Step runs one bounded increment: the completions that arrived before the
// call, then the continuations queued before the call. Work queued while the
// step runs waits for the next one. Step never waits for a leaf.
func (l *Loop) Step() error {
	if !l.stepping.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer l.stepping.Store(false)

	l.mu.Lock()
	inbox, soon := l.inbox, l.soon
	l.inbox, l.soon = nil, nil
	l.mu.Unlock()

	for _, fn := range inbox {
		fn()
	}
	for _, fn := range soon {
		fn()
	}
	l.steps++
	return nil
}

// Steps returns how many increments have run.
func (l *Loop) Steps() uint64 { return l.steps }

func (l *Loop) track(h Handle) { l.tracked[h] = struct{}{} }

// Forget drops a harvested handle from the tracked set.
func (l *Loop) Forget(h Handle) { delete(l.tracked, h) }

// Tracked returns the number of handles in the tracked set.
func (l *Loop) Tracked() int { return len(l.tracked) }

// CancelAll cancels every tracked handle that is not done and empties the
// set.
func (l *Loop) CancelAll() {
	for h := range l.tracked {
		if !h.Done() {
			h.Cancel()
		}
		delete(l.tracked, h)
	}
}
