package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Pool manages a fixed number of worker goroutines that run blocking event
// handlers off the dispatch path.
type Pool struct {
	numWorkers int
	tasks      chan func()
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan func(), numWorkers*2),
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the tasks channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("handler pool started", "num_workers", p.numWorkers)
}

// Submit sends a task to the worker pool. Blocks while the queue is full.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Stop closes the tasks channel and waits for all workers to drain.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("handler pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.tasks {
		select {
		case <-ctx.Done():
			return
		default:
			task()
		}
	}
}
