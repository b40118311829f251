package scheduler

import (
	"errors"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// DefaultPoolSize is the number of workers used for blocking leaves when the
// caller does not choose one.
const DefaultPoolSize = 8

var (
	ErrPoolSize = errors.New("scheduler: pool size must be at least 1")
	ErrClosed   = errors.New("scheduler: pool closed")
	// ErrReentrant is returned by Step when called from inside a step.
	ErrReentrant = errors.New("scheduler: step already in progress")
)

// Pool runs blocking work on a bounded set of goroutines. Submit never
// blocks: work is queued and a feeder hands it to the workers as they free
// up.
type Pool struct {
	size    int
	workers *pool.Pool

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewPool starts a pool of size workers.
func NewPool(size int) (*Pool, error) {
	if size < 1 {
		return nil, ErrPoolSize
	}
	p := &Pool{
		size:    size,
		workers: pool.New().WithMaxGoroutines(size),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.feed()
	return p, nil
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Submit queues fn. It fails only once the pool is closed.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.notify()
	return nil
}

// Pending returns the number of queued items not yet handed to a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting work, runs what is queued and waits for the
// workers. Calling it twice is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if !already {
		p.notify()
	}
	<-p.done
}

func (p *Pool) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) feed() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.mu.Unlock()
			<-p.wake
			p.mu.Lock()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			p.workers.Wait()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		// Blocks while every worker is busy; only the feeder waits.
		p.workers.Go(fn)
	}
}
