// Package worker provides an asynchronous ingestion pool: a bounded queue
// of (owner, window) jobs drained by background workers that run each job
// through the memory pipeline.
//
// The pool decouples batch ingestion callers from pipeline latency. Same-owner jobs may land on different workers; the
// pipeline's owner lock keeps their runs serialized.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/conversation"
	"github.com/engramlabs/engram/pkg/pipeline"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one conversation window awaiting ingestion.
type Job struct {
	Owner  string
	Window conversation.Window
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Orchestrator runs each job's window through the pipeline.
	Orchestrator *pipeline.Orchestrator

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// OnDone, when set, observes every finished job with the pipeline's
	// result and error. Called from worker goroutines.
	OnDone func(Job, pipeline.Result, error)

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool processes ingestion jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Orchestrator == nil {
		return nil, errors.New("worker pool requires an orchestrator")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job
// being dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("window queued",
			zap.String("owner", job.Owner),
			zap.Int("turns", len(job.Window)),
		)
		return true
	default:
		p.logger.Error("window not queued, queue full, job dropped",
			zap.String("owner", job.Owner),
			zap.Int("turns", len(job.Window)),
		)
		return false
	}
}

// EnqueueWait submits a job, blocking until the queue has room or the
// context ends. For callers that must not drop work.
func (p *Pool) EnqueueWait(ctx context.Context, job Job) error {
	select {
	case p.queue <- job:
		p.logger.Debug("window queued",
			zap.String("owner", job.Owner),
			zap.Int("turns", len(job.Window)),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after all producers have stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the
// jobs queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("ingestion worker stopped", zap.Uint("worker_id", id))
}

// processJob runs one window through the pipeline. Failures are logged, not
// returned; the pipeline has already retried what was worth retrying.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	result, err := p.config.Orchestrator.ProcessWindow(ctx, job.Owner, job.Window)
	if err != nil {
		p.logger.Error("async window ingestion failed",
			zap.String("owner", job.Owner),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("window ingested",
			zap.String("owner", job.Owner),
			zap.Int("committed", len(result.Committed)),
		)
	}

	if p.config.OnDone != nil {
		p.config.OnDone(job, result, err)
	}
}
