// Package worker provides the asynchronous worker pool that runs derivation
// jobs off the write path.
//
// The pool decouples background work from request handling: callers enqueue
// and return immediately, and a full queue drops the job instead of blocking.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	defaultNumWorkers   uint = 4
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute.
type Job struct {
	// Name identifies the job kind in logs, e.g. "vector" or "facts".
	Name string

	// Key identifies what the job works on, e.g. a stream key.
	Key string

	// Run does the work. Its error is logged, never retried.
	Run func(ctx context.Context) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job when positive.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "job", job.Name, "key", job.Key)
		return false
	}

	p.pending.Add(1)
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "job", job.Name, "key", job.Key)
		return true
	default:
		p.pending.Done()
		p.logger.Error("job not queued, queue full, job dropped", "job", job.Name, "key", job.Key)
		return false
	}
}

// Wait blocks until every job enqueued so far has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// drain. Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob runs one job. A failing or panicking job never takes the worker down.
func (p *Pool) processJob(job Job) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "job", job.Name, "key", job.Key, "panic", r)
		}
	}()

	ctx := p.ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		p.logger.Warn("job failed",
			"job", job.Name,
			"key", job.Key,
			"error", err,
		)
		return
	}

	p.logger.Debug("job done",
		"job", job.Name,
		"key", job.Key,
		"duration", time.Since(start),
	)
}
