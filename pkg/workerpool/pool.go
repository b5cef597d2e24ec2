// Package workerpool runs fire-and-forget jobs on a fixed number of goroutines.
package workerpool

import (
	"errors"
	"sync"
)

// ErrStopped is returned by TrySubmit after Stop.
var ErrStopped = errors.New("workerpool: stopped")

// ErrQueueFull is returned by TrySubmit when the queue has no free slot.
var ErrQueueFull = errors.New("workerpool: queue full")

// DefaultQueueSize is the job buffer used when NewPool gets a non-positive size.
const DefaultQueueSize = 1024

// Pool is a bounded worker pool.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	jobs    chan func()
	onDepth func(int)
}

// NewPool starts n workers reading from a queue of queueSize jobs.
// onDepth, if not nil, is called with the queue depth after every change.
func NewPool(n, queueSize int, onDepth func(int)) *Pool {
	if n < 1 {
		n = 1
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{jobs: make(chan func(), queueSize), onDepth: onDepth}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.reportDepth()
				job()
			}
		}()
	}
	return p
}

// TrySubmit enqueues f without blocking.
func (p *Pool) TrySubmit(f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- f:
		p.reportDepth()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued jobs to finish. Safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) reportDepth() {
	if p.onDepth != nil {
		p.onDepth(len(p.jobs))
	}
}
