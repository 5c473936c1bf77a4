// Package commit applies a consolidation plan to the fact store: inserts
// embed-and-upsert new active facts, transitions mark stored facts outdated.
//
// Application is at-least-once. Inserts are keyed upserts and transitions
// are no-ops once the target is already outdated, so a retried plan
// converges on the same fact set. There is no rollback: actions that fail
// are reported individually and everything already applied stays applied.
package commit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

// DefaultConcurrency bounds how many distinct-id action groups commit in
// parallel.
const DefaultConcurrency = 4

// ActionFailure pairs a plan action with the error that stopped it.
type ActionFailure struct {
	Action consolidate.Action
	Err    error
}

// Result reports what one Apply call did.
type Result struct {
	// Inserted holds the facts written, with embeddings and timestamps as
	// stored.
	Inserted []fact.Fact

	// Transitioned holds the ids marked outdated.
	Transitioned []string

	// Failed holds the actions that did not apply, each with its error.
	Failed []ActionFailure
}

// Ok reports whether every action in the plan applied.
func (r Result) Ok() bool {
	return len(r.Failed) == 0
}

// RetryPlan returns a plan containing only the failed actions, for callers
// that retry the failed subset rather than the whole plan.
func (r Result) RetryPlan(owner string) consolidate.Plan {
	plan := consolidate.Plan{Owner: owner}
	for _, f := range r.Failed {
		plan.Actions = append(plan.Actions, f.Action)
	}
	return plan
}

// Merge folds a retry's result into this one: successes accumulate and the
// retry's failure list replaces the actions it re-attempted.
func (r Result) Merge(retry Result) Result {
	return Result{
		Inserted:     append(r.Inserted, retry.Inserted...),
		Transitioned: append(r.Transitioned, retry.Transitioned...),
		Failed:       retry.Failed,
	}
}

// Config holds settings for the writer.
type Config struct {
	// Concurrency bounds parallel action groups. Zero or negative selects
	// DefaultConcurrency.
	Concurrency int
}

// Writer applies commit plans to the fact store.
type Writer struct {
	embedder    embeddings.Embedder
	store       vector.Driver
	concurrency int
	logger      *zap.Logger
}

// NewWriter creates a writer over the given embedder and store.
func NewWriter(embedder embeddings.Embedder, store vector.Driver, cfg Config, logger *zap.Logger) *Writer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Writer{
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Apply executes every action in the plan. Actions touching distinct ids
// run concurrently; actions touching the same id run in plan order. A
// failed action is recorded and does not stop the rest of the plan. The
// returned error is non-nil only when the context was cancelled, in which
// case unissued actions are reported as failed.
func (w *Writer) Apply(ctx context.Context, plan consolidate.Plan) (Result, error) {
	var result Result
	if plan.Empty() {
		return result, nil
	}

	// Group by touched id so same-id actions stay ordered while distinct
	// ids commit in parallel.
	type group struct {
		id      string
		actions []consolidate.Action
	}
	var groups []group
	index := make(map[string]int)
	for _, action := range plan.Actions {
		id := action.TargetID
		if action.Op == consolidate.OpInsert {
			id = action.Fact.ID
		}
		gi, ok := index[id]
		if !ok {
			gi = len(groups)
			index[id] = gi
			groups = append(groups, group{id: id})
		}
		groups[gi].actions = append(groups[gi].actions, action)
	}

	outcomes := make([]Result, len(groups))
	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for gi := range groups {
		sem <- struct{}{}
		wg.Add(1)
		go func(gi int) {
			defer wg.Done()
			defer func() { <-sem }()

			out := &outcomes[gi]
			for _, action := range groups[gi].actions {
				if err := ctx.Err(); err != nil {
					out.Failed = append(out.Failed, ActionFailure{Action: action, Err: err})
					continue
				}
				switch action.Op {
				case consolidate.OpInsert:
					f, err := w.insert(ctx, action.Fact)
					if err != nil {
						out.Failed = append(out.Failed, ActionFailure{Action: action, Err: err})
						continue
					}
					out.Inserted = append(out.Inserted, f)
				case consolidate.OpTransition:
					if err := w.transition(ctx, action.TargetID); err != nil {
						out.Failed = append(out.Failed, ActionFailure{Action: action, Err: err})
						continue
					}
					out.Transitioned = append(out.Transitioned, action.TargetID)
				default:
					out.Failed = append(out.Failed, ActionFailure{
						Action: action,
						Err:    fmt.Errorf("unknown action op: %q", action.Op),
					})
				}
			}
		}(gi)
	}
	wg.Wait()

	// Merge in group order to keep the report deterministic.
	for _, out := range outcomes {
		result.Inserted = append(result.Inserted, out.Inserted...)
		result.Transitioned = append(result.Transitioned, out.Transitioned...)
		result.Failed = append(result.Failed, out.Failed...)
	}

	w.logger.Debug("applied commit plan",
		zap.String("owner", plan.Owner),
		zap.Int("inserted", len(result.Inserted)),
		zap.Int("transitioned", len(result.Transitioned)),
		zap.Int("failed", len(result.Failed)),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// insert embeds the fact if nothing upstream already did, stamps its
// timestamps, forces active status, and upserts it by id.
func (w *Writer) insert(ctx context.Context, f fact.Fact) (fact.Fact, error) {
	if len(f.Embedding) == 0 {
		emb, err := w.embedder.Embed(ctx, f.Content)
		if err != nil {
			return fact.Fact{}, fmt.Errorf("embedding fact %s: %w", f.ID, err)
		}
		f.Embedding = emb
	}

	now := time.Now().UTC()
	f.Status = fact.StatusActive
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}

	if err := w.store.Upsert(ctx, []fact.Fact{f}); err != nil {
		return fact.Fact{}, fmt.Errorf("upserting fact %s: %w", f.ID, err)
	}
	return f, nil
}

// transition marks the stored fact outdated, touching only status and
// updated_at. Outdated is terminal; there is no way back to active here.
func (w *Writer) transition(ctx context.Context, id string) error {
	if err := w.store.UpdateStatus(ctx, id, fact.StatusOutdated, time.Now().UTC()); err != nil {
		return fmt.Errorf("transitioning fact %s: %w", id, err)
	}
	return nil
}
