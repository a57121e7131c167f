package workers

import (
	"errors"
	"sync"

	"github.com/gobbledegook/creevey/internal/logging"
)

// ErrBusy is returned by TrySubmit when the queue is full.
var ErrBusy = errors.New("workers: pool busy")

// ErrClosed is returned by TrySubmit after Close.
var ErrClosed = errors.New("workers: pool closed")

// Pool runs submitted functions on a fixed set of goroutines. Submission never
// blocks: a full queue is reported as ErrBusy so callers can fail fast instead
// of stalling a request handler.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers reading from a queue of the given depth.
func NewPool(size, queue int) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{jobs: make(chan func(), queue)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logging.Debug("Worker pool started: %d workers, queue %d", size, queue)
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
	logging.Debug("Worker %d finished", id)
}

// TrySubmit queues fn without blocking.
func (p *Pool) TrySubmit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- fn:
		return nil
	default:
		return ErrBusy
	}
}

// Drain removes every queued job that has not started yet and returns how
// many were dropped. Jobs already running are unaffected.
func (p *Pool) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-p.jobs:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobs)
}

// Close stops accepting work and waits for queued and running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
