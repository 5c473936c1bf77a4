// Package pipeline runs the long-term memory state machine: extract
// candidate facts from a conversation window, retrieve stored neighbors,
// consolidate the two sets into a commit plan, and apply the plan to the
// fact store.
//
// One run handles one owner's window. Runs for the same owner are
// serialized through an owner lock; runs for distinct owners proceed in
// parallel. Each stage runs under its own span, with a per-attempt timeout
// and bounded retries for transient backend failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/commit"
	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/conversation"
	"github.com/engramlabs/engram/pkg/eventstream"
	"github.com/engramlabs/engram/pkg/eventstream/nop"
	"github.com/engramlabs/engram/pkg/extract"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/ownerlock"
	"github.com/engramlabs/engram/pkg/ownerlock/inprocess"
	"github.com/engramlabs/engram/pkg/retrieve"
	"github.com/engramlabs/engram/pkg/telemetry"
	"github.com/engramlabs/engram/pkg/vector"
)

// Defaults for runs that do not configure their own limits.
const (
	DefaultStageTimeout = 30 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 250 * time.Millisecond
)

// publishTimeout bounds the window event publish, which runs on its own
// context because the run's context may already be cancelled.
const publishTimeout = 5 * time.Second

// Config holds settings for the orchestrator.
type Config struct {
	// StageTimeout bounds each stage attempt. Zero or negative selects
	// DefaultStageTimeout.
	StageTimeout time.Duration

	// MaxRetries is how many extra attempts a stage gets after a transient
	// failure. Zero selects DefaultMaxRetries; negative disables retries.
	MaxRetries int

	// RetryDelay is the first backoff delay; each retry doubles it. Zero or
	// negative selects DefaultRetryDelay.
	RetryDelay time.Duration
}

// Deps bundles the orchestrator's collaborators. Extractor, Retriever,
// Consolidator, Writer and Store are required. Locks defaults to an
// in-process locker, Events to the nop publisher and Logger to a no-op
// logger.
type Deps struct {
	Extractor    *extract.Extractor
	Retriever    *retrieve.Retriever
	Consolidator *consolidate.Consolidator
	Writer       *commit.Writer
	Store        vector.Driver
	Locks        ownerlock.Locker
	Events       eventstream.Publisher
	Logger       *zap.Logger
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Owner is the memory owner the run belonged to.
	Owner string

	// Stage is the terminal stage, StageDone or StageFailed.
	Stage Stage

	// Committed is the full fact delta of a successful run: the facts
	// inserted plus the facts transitioned to outdated, as stored.
	Committed []fact.Fact

	// Failed holds per-action commit failures that did not fail the run,
	// such as transitions whose target was never stored.
	Failed []commit.ActionFailure
}

// Orchestrator drives conversation windows through the memory pipeline.
type Orchestrator struct {
	extractor    *extract.Extractor
	retriever    *retrieve.Retriever
	consolidator *consolidate.Consolidator
	writer       *commit.Writer
	store        vector.Driver
	locks        ownerlock.Locker
	events       eventstream.Publisher
	tracer       trace.Tracer
	logger       *zap.Logger

	stageTimeout time.Duration
	maxRetries   int
	retryDelay   time.Duration
}

// NewOrchestrator creates an orchestrator from its collaborators.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	locks := deps.Locks
	if locks == nil {
		locks = inprocess.NewLocker()
	}
	events := deps.Events
	if events == nil {
		events = nop.NewPublisher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Orchestrator{
		extractor:    deps.Extractor,
		retriever:    deps.Retriever,
		consolidator: deps.Consolidator,
		writer:       deps.Writer,
		store:        deps.Store,
		locks:        locks,
		events:       events,
		tracer:       telemetry.Tracer(),
		logger:       logger,
		stageTimeout: stageTimeout,
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,
	}
}

// runMeta carries the bookkeeping every terminal event reports.
type runMeta struct {
	started    time.Time
	turns      int
	candidates int
}

// ProcessWindow runs one conversation window through the pipeline and
// returns the committed fact delta. An empty window or an extraction that
// yields nothing completes as Done with an empty delta. On failure the
// returned error is an *Error naming the stage and kind, and Result.Stage
// is StageFailed.
func (o *Orchestrator) ProcessWindow(ctx context.Context, owner string, window conversation.Window) (Result, error) {
	result := Result{Owner: owner, Stage: StageReceived}
	meta := runMeta{started: time.Now().UTC(), turns: len(window)}

	ctx, span := o.tracer.Start(ctx, "pipeline.process_window", trace.WithAttributes(
		attribute.String("owner", owner),
		attribute.Int("turns", len(window)),
	))
	defer span.End()

	if owner == "" {
		return o.fail(ctx, &result, meta, errors.New("owner is required"))
	}
	if err := window.Validate(); err != nil {
		return o.fail(ctx, &result, meta, err)
	}

	// Nothing to process. Done with an empty delta, no lock needed.
	if len(window) == 0 {
		result.Stage = StageDone
		o.publish(&result, meta, "", nil, nil)
		return result, nil
	}

	release, err := o.locks.Acquire(ctx, owner)
	if err != nil {
		return o.fail(ctx, &result, meta, fmt.Errorf("acquiring owner lock: %w", err))
	}
	defer release()

	result.Stage = StageExtracting
	candidates, err := retryStage(ctx, o, StageExtracting, func(ctx context.Context) ([]fact.Fact, error) {
		return o.extractor.Extract(ctx, owner, window)
	})
	if err != nil {
		return o.fail(ctx, &result, meta, err)
	}
	meta.candidates = len(candidates)
	if len(candidates) == 0 {
		result.Stage = StageDone
		o.publish(&result, meta, "", nil, nil)
		o.logger.Info("window held no facts", zap.String("owner", owner), zap.Int("turns", meta.turns))
		return result, nil
	}

	result.Stage = StageRetrieving
	type neighborhood struct {
		candidates []fact.Fact
		neighbors  []fact.Fact
	}
	hood, err := retryStage(ctx, o, StageRetrieving, func(ctx context.Context) (neighborhood, error) {
		embedded, neighbors, err := o.retriever.Neighbors(ctx, owner, candidates)
		return neighborhood{candidates: embedded, neighbors: neighbors}, err
	})
	if err != nil {
		return o.fail(ctx, &result, meta, err)
	}

	result.Stage = StageConsolidating
	plan, err := retryStage(ctx, o, StageConsolidating, func(ctx context.Context) (consolidate.Plan, error) {
		return o.consolidator.Consolidate(ctx, owner, hood.candidates, hood.neighbors)
	})
	if err != nil {
		return o.fail(ctx, &result, meta, err)
	}

	result.Stage = StageCommitting
	applied, err := o.commitPlan(ctx, plan)
	result.Failed = applied.Failed
	if err != nil {
		return o.fail(ctx, &result, meta, err)
	}
	// Missing transition targets are partial failures; anything else left
	// after the retries fails the run.
	for _, f := range applied.Failed {
		if Classify(f.Err) != KindNotFound {
			return o.fail(ctx, &result, meta, f.Err)
		}
	}

	result.Stage = StageDone
	result.Committed = o.committedDelta(ctx, owner, applied)
	o.publish(&result, meta, "", applied.Inserted, applied.Transitioned)
	o.logger.Info("window processed",
		zap.String("owner", owner),
		zap.Int("turns", meta.turns),
		zap.Int("candidates", meta.candidates),
		zap.Int("inserted", len(applied.Inserted)),
		zap.Int("transitioned", len(applied.Transitioned)),
		zap.Int("failed", len(applied.Failed)),
		zap.Duration("took", time.Since(meta.started)),
	)
	return result, nil
}

// SearchFacts embeds the query and returns the owner's nearest stored
// facts, active and outdated alike, ranked by ascending cosine distance.
func (o *Orchestrator) SearchFacts(ctx context.Context, owner, query string, limit int) ([]vector.QueryResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.search_facts", trace.WithAttributes(
		attribute.String("owner", owner),
	))
	defer span.End()

	if owner == "" {
		return nil, errors.New("owner is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	results, err := o.retriever.Search(ctx, owner, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}
	return results, nil
}

// retryStage runs one stage under a span, retrying transient failures with
// exponential backoff. Each attempt gets its own timeout; an attempt that
// hits that timeout while the run is still live counts as transient.
func retryStage[T any](ctx context.Context, o *Orchestrator, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	var zero T
	delay := o.retryDelay
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		out, err := fn(attemptCtx)
		cancel()
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return out, nil
		}

		kind := Classify(err)
		timedOut := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		if ctx.Err() != nil || (!Transient(kind) && !timedOut) || attempt >= o.maxRetries {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
			return zero, err
		}

		o.logger.Warn("stage attempt failed, retrying",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}
}

// commitPlan applies the plan, then re-applies just the transiently failed
// actions with backoff. Failures that survive the retries stay in the
// result for the caller to judge.
func (o *Orchestrator) commitPlan(ctx context.Context, plan consolidate.Plan) (commit.Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(StageCommitting))
	defer span.End()

	applied, err := o.writer.Apply(ctx, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return applied, err
	}

	delay := o.retryDelay
	for attempt := 0; attempt < o.maxRetries && !applied.Ok(); attempt++ {
		var again, permanent []commit.ActionFailure
		for _, f := range applied.Failed {
			if Transient(Classify(f.Err)) {
				again = append(again, f)
			} else {
				permanent = append(permanent, f)
			}
		}
		if len(again) == 0 {
			break
		}
		retryPlan := commit.Result{Failed: again}.RetryPlan(plan.Owner)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return applied, ctx.Err()
		}
		delay *= 2

		o.logger.Warn("retrying failed commit actions",
			zap.String("owner", plan.Owner),
			zap.Int("actions", len(retryPlan.Actions)),
			zap.Int("attempt", attempt+1),
		)
		retried, err := o.writer.Apply(ctx, retryPlan)
		applied = applied.Merge(retried)
		applied.Failed = append(permanent, applied.Failed...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(Classify(err)))
			return applied, err
		}
	}
	return applied, nil
}

// committedDelta assembles the run's full fact delta: inserted facts as
// written plus transitioned facts as stored after the transition. A failed
// read-back degrades the delta to inserts only rather than failing a run
// whose writes already landed.
func (o *Orchestrator) committedDelta(ctx context.Context, owner string, applied commit.Result) []fact.Fact {
	delta := applied.Inserted
	if len(applied.Transitioned) == 0 {
		return delta
	}
	transitioned, err := o.store.Get(ctx, owner, applied.Transitioned)
	if err != nil {
		o.logger.Warn("reading back transitioned facts failed",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return delta
	}
	return append(delta, transitioned...)
}

// fail moves the run to Failed, publishes its terminal event, and wraps
// the cause with the stage that was executing and its classified kind.
func (o *Orchestrator) fail(ctx context.Context, result *Result, meta runMeta, err error) (Result, error) {
	perr := &Error{Stage: result.Stage, Kind: Classify(err), Err: err}
	result.Stage = StageFailed
	result.Committed = nil

	span := trace.SpanFromContext(ctx)
	span.RecordError(perr)
	span.SetStatus(codes.Error, string(perr.Kind))

	o.logger.Error("pipeline run failed",
		zap.String("owner", result.Owner),
		zap.String("stage", string(perr.Stage)),
		zap.String("kind", string(perr.Kind)),
		zap.Error(err),
	)
	o.publish(result, meta, perr.Error(), nil, nil)
	return *result, perr
}

// publish emits the run's terminal window event. Publish failures are
// logged and never affect the run's outcome.
func (o *Orchestrator) publish(result *Result, meta runMeta, runErr string, inserted []fact.Fact, transitioned []string) {
	now := time.Now().UTC()
	event := &eventstream.WindowProcessedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeWindowProcessed,
		EventID:       uuid.NewString(),
		EmittedAt:     now,
		Owner:         result.Owner,
		Run: eventstream.RunMeta{
			Stage:       string(result.Stage),
			StartedAt:   meta.started,
			CompletedAt: now,
			DurationMs:  now.Sub(meta.started).Milliseconds(),
			Turns:       meta.turns,
			Candidates:  meta.candidates,
			Failed:      len(result.Failed),
			Error:       runErr,
		},
		Inserted:     inserted,
		Transitioned: transitioned,
	}

	// The run's context may already be done; the event still matters.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := o.events.PublishWindowProcessed(ctx, event); err != nil {
		o.logger.Warn("publishing window event failed",
			zap.String("owner", result.Owner),
			zap.Error(err),
		)
	}
}
