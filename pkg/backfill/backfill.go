package backfill

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/pipeline"
	"github.com/engramlabs/engram/pkg/worker"
)

// Options configures backfill behavior.
type Options struct {
	// DryRun parses and validates window files without ingesting them.
	DryRun bool

	// Workers sizes the ingestion pool. Zero selects the pool default.
	Workers uint
}

// Backfiller feeds directories of historical window files through the
// memory pipeline.
type Backfiller struct {
	orch    *pipeline.Orchestrator
	options Options
	logger  *zap.Logger
}

// NewBackfiller creates a Backfiller over the given orchestrator.
func NewBackfiller(orch *pipeline.Orchestrator, opts Options, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		orch:    orch,
		options: opts,
		logger:  logger,
	}
}

// Run scans the directory for window files and ingests them, returning
// per-file accounting. Malformed files and failed runs are counted, not
// fatal; the first scan error or context cancellation is.
func (b *Backfiller) Run(ctx context.Context, dir string) (*Result, error) {
	files, err := ScanWindowDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning window directory: %w", err)
	}

	result := &Result{Files: len(files)}

	var mu sync.Mutex
	pool, err := worker.NewPool(&worker.Config{
		Orchestrator: b.orch,
		NumWorkers:   b.options.Workers,
		OnDone: func(job worker.Job, res pipeline.Result, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				return
			}
			result.Ingested++
			result.FactsCommitted += len(res.Committed)
		},
		Logger: b.logger,
	})
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		wf, err := ParseWindowFile(path)
		if err != nil {
			b.logger.Warn("skipping malformed window file",
				zap.String("path", path),
				zap.Error(err),
			)
			mu.Lock()
			result.Malformed++
			mu.Unlock()
			continue
		}

		if b.options.DryRun {
			continue
		}

		if err := pool.EnqueueWait(ctx, worker.Job{Owner: wf.Owner, Window: wf.Turns}); err != nil {
			// Jobs already accepted still finish; the counts stay honest.
			pool.Close()
			return result, err
		}
	}

	// Drain the pool so the counts are final.
	pool.Close()
	return result, nil
}
