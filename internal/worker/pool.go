package worker

import (
	"context"
	"sync"
)

// Job is a unit of work run by a Pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of a Job
type Result interface {
	GetError() error
}

// canceled stands in for jobs that never ran because the pool stopped
type canceled struct{ err error }

func (c canceled) GetError() error { return c.err }

type queued struct {
	index int
	job   Job
}

// Pool runs jobs on a fixed number of workers and returns results in
// submission order.
type Pool struct {
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan queued
	wg      sync.WaitGroup

	// sending guards jobs against a close racing a Submit
	sending   sync.RWMutex
	closeOnce sync.Once

	mu      sync.Mutex
	results []Result
	closed  bool
}

// NewPool creates a pool bound to ctx. Cancelling ctx stops the workers;
// queued jobs are reported with the context error.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan queued, workers*2),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobs:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			res := q.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[q.index] = res
			p.mu.Unlock()
		}
	}
}

// Submit queues job. It reports false when the pool has stopped.
func (p *Pool) Submit(job Job) bool {
	p.sending.RLock()
	defer p.sending.RUnlock()

	p.mu.Lock()
	if p.closed || p.ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	idx := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case p.jobs <- queued{index: idx, job: job}:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Wait stops accepting jobs, waits for the queued ones and returns every
// result in the order the jobs were submitted.
func (p *Pool) Wait() []Result {
	p.close()
	p.wg.Wait()
	defer p.cancel()
	return p.collect()
}

// Shutdown stops the workers without running queued jobs.
func (p *Pool) Shutdown() {
	p.cancel()
	p.close()
	p.wg.Wait()
}

func (p *Pool) close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.sending.Lock()
		close(p.jobs)
		p.sending.Unlock()
	})
}

func (p *Pool) collect() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	for i, r := range p.results {
		if r == nil {
			err := p.ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			r = canceled{err: err}
		}
		out[i] = r
	}
	return out
}
