package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/commit"
	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/conversation"
	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/eventstream"
	"github.com/engramlabs/engram/pkg/extract"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/pipeline"
	"github.com/engramlabs/engram/pkg/reasoning"
	"github.com/engramlabs/engram/pkg/retrieve"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
)

// recordingPublisher captures window events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.WindowProcessedEvent
}

func (p *recordingPublisher) PublishWindowProcessed(_ context.Context, event *eventstream.WindowProcessedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) last() *eventstream.WindowProcessedEvent {
	GinkgoHelper()
	p.mu.Lock()
	defer p.mu.Unlock()
	Expect(p.events).NotTo(BeEmpty(), "every run must publish a terminal event")
	return p.events[len(p.events)-1]
}

var _ eventstream.Publisher = (*recordingPublisher)(nil)

var _ = Describe("Orchestrator", func() {
	const owner = "owner-1"

	var (
		ctx      context.Context
		reasoner *testutils.MockReasoner
		embedder *testutils.MockEmbedder
		events   *recordingPublisher
	)

	fastCfg := pipeline.Config{
		StageTimeout: 2 * time.Second,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	}

	BeforeEach(func() {
		ctx = context.Background()
		reasoner = testutils.NewMockReasoner()
		embedder = testutils.NewMockEmbedder()
		events = &recordingPublisher{}
	})

	newOrchestrator := func(store vector.Driver, cfg pipeline.Config) *pipeline.Orchestrator {
		logger := zap.NewNop()
		return pipeline.NewOrchestrator(pipeline.Deps{
			Extractor:    extract.NewExtractor(reasoner, extract.Config{SchemaRetries: 2}, logger),
			Retriever:    retrieve.NewRetriever(embedder, store, retrieve.Config{}, logger),
			Consolidator: consolidate.NewConsolidator(reasoner, consolidate.Config{SchemaRetries: 2}, logger),
			Writer:       commit.NewWriter(embedder, store, commit.Config{}, logger),
			Store:        store,
			Events:       events,
			Logger:       logger,
		}, cfg)
	}

	seed := func(store *inmemory.Driver, id, content string, status fact.Status, emb []float32) {
		GinkgoHelper()
		now := time.Now().UTC()
		Expect(store.Upsert(ctx, []fact.Fact{{
			ID:        id,
			Owner:     owner,
			Content:   content,
			Category:  fact.CategoryPreference,
			Status:    status,
			Embedding: emb,
			CreatedAt: now,
			UpdatedAt: now,
		}})).To(Succeed())
	}

	asPipelineError := func(err error) *pipeline.Error {
		GinkgoHelper()
		var perr *pipeline.Error
		Expect(errors.As(err, &perr)).To(BeTrue(), "pipeline failures must be *pipeline.Error")
		return perr
	}

	Describe("ProcessWindow", func() {
		It("completes an empty window as done without touching any backend", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)

			result, err := orch.ProcessWindow(ctx, owner, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Owner).To(Equal(owner))
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Committed).To(BeEmpty())
			Expect(reasoner.Calls()).To(BeZero())

			event := events.last()
			Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
			Expect(event.EventType).To(Equal(eventstream.EventTypeWindowProcessed))
			Expect(event.Owner).To(Equal(owner))
			Expect(event.Run.Stage).To(Equal("done"))
			Expect(event.Run.Turns).To(BeZero())
			_, err = uuid.Parse(event.EventID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes a filler window as done when extraction yields nothing", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.Responses = []string{`{"facts": []}`}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("thanks!", "you're welcome"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Committed).To(BeEmpty())
			Expect(reasoner.Calls()).To(Equal(1), "nothing downstream of extraction should run")

			stored, err := store.List(ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeEmpty())
			Expect(events.last().Run.Candidates).To(BeZero())
		})

		It("inserts every extracted fact for a brand-new owner", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is vegan", "category": "preference"}, {"content": "Works as a nurse", "category": "professional"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm a vegan nurse", "Noted!"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Committed).To(HaveLen(2))
			Expect(result.Failed).To(BeEmpty())
			Expect(reasoner.Calls()).To(Equal(1), "no stored neighbors, so consolidation needs no reasoning")

			stored, err := store.List(ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(2))
			for _, f := range stored {
				Expect(f.Status).To(Equal(fact.StatusActive))
				Expect(f.CreatedAt).NotTo(BeZero())
				Expect(f.Embedding).To(HaveLen(3))
			}

			event := events.last()
			Expect(event.Run.Candidates).To(Equal(2))
			Expect(event.Inserted).To(HaveLen(2))
			Expect(event.Transitioned).To(BeEmpty())
		})

		It("transitions a contradicted fact and inserts its replacement", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			seed(store, "n1", "Loves pizza", fact.StatusActive, []float32{1, 0, 0})
			embedder.Embeddings["Is now vegan"] = []float32{0.9, 0.1, 0}
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is now vegan", "category": "preference"}]}`,
				`{"memories": [{"id": "n1", "content": "Loves pizza", "category": "preference", "status": "outdated"}, {"id": "c-new", "content": "Is now vegan", "category": "preference", "status": "active"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan now", "Good to know"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(reasoner.Calls()).To(Equal(2))
			Expect(reasoner.Prompts[1]).To(ContainSubstring(`"id":"n1"`))
			Expect(reasoner.Prompts[1]).To(ContainSubstring("Is now vegan"))

			statusByContent := map[string]fact.Status{}
			for _, f := range result.Committed {
				statusByContent[f.Content] = f.Status
			}
			Expect(statusByContent).To(Equal(map[string]fact.Status{
				"Is now vegan": fact.StatusActive,
				"Loves pizza":  fact.StatusOutdated,
			}))

			stored, err := store.Get(ctx, owner, []string{"n1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored[0].Status).To(Equal(fact.StatusOutdated))
			Expect(stored[0].Content).To(Equal("Loves pizza"), "transitions never rewrite content")

			event := events.last()
			Expect(event.Transitioned).To(Equal([]string{"n1"}))
			Expect(event.Inserted).To(HaveLen(1))
		})

		It("commits nothing when the window repeats a stored fact", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			seed(store, "n1", "Loves pizza", fact.StatusActive, []float32{1, 0, 0})
			embedder.Embeddings["Loves pizza"] = []float32{1, 0, 0}
			reasoner.Responses = []string{
				`{"facts": [{"content": "Loves pizza", "category": "preference"}]}`,
				`{"memories": [{"id": "n1", "content": "Loves pizza", "category": "preference", "status": "active"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Committed).To(BeEmpty())

			stored, err := store.List(ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Status).To(Equal(fact.StatusActive))
		})

		It("fails at extracting when the reasoner never recovers", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.FailComplete = true

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).To(MatchError(reasoning.ErrUnavailable))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageExtracting))
			Expect(perr.Kind).To(Equal(pipeline.KindReasoningUnavailable))
			Expect(result.Stage).To(Equal(pipeline.StageFailed))
			Expect(result.Committed).To(BeEmpty())
			Expect(reasoner.Calls()).To(Equal(3), "initial attempt plus two retries")

			event := events.last()
			Expect(event.Run.Stage).To(Equal("failed"))
			Expect(event.Run.Error).NotTo(BeEmpty())
		})

		It("retries a transient extraction failure and succeeds", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.FailFirst = 1
			reasoner.Responses = []string{
				"",
				`{"facts": [{"content": "Is vegan", "category": "preference"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan", "Noted"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(reasoner.Calls()).To(Equal(2))

			stored, err := store.List(ctx, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
		})

		It("does not retry a schema violation", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.Responses = []string{"not json at all"}

			_, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).To(MatchError(reasoning.ErrSchemaViolation))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageExtracting))
			Expect(perr.Kind).To(Equal(pipeline.KindSchemaViolation))
			Expect(reasoner.Calls()).To(Equal(3), "the re-ask budget, with no stage-level retries on top")
		})

		It("fails at retrieving when the store is down", func() {
			driver := testutils.NewMockVectorDriver()
			driver.FailQuery = true
			orch := newOrchestrator(driver, fastCfg)
			reasoner.Responses = []string{`{"facts": [{"content": "Is vegan", "category": "preference"}]}`}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan", "Noted"))
			Expect(err).To(MatchError(vector.ErrUnavailable))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageRetrieving))
			Expect(perr.Kind).To(Equal(pipeline.KindVectorStoreUnavailable))
			Expect(result.Stage).To(Equal(pipeline.StageFailed))
		})

		It("fails at consolidating when the model keeps violating the schema", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			seed(store, "n1", "Loves pizza", fact.StatusActive, []float32{1, 0, 0})
			embedder.Embeddings["Is now vegan"] = []float32{0.9, 0.1, 0}
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is now vegan", "category": "preference"}]}`,
				`{"memories": [{"status": "outdated"}]}`,
			}

			_, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan now", "Good to know"))
			Expect(err).To(MatchError(reasoning.ErrSchemaViolation))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageConsolidating))
			Expect(reasoner.Calls()).To(Equal(4), "one extraction plus the consolidation re-ask budget")
		})

		It("treats a missing transition target as a partial failure, not a run failure", func() {
			driver := testutils.NewMockVectorDriver()
			now := time.Now().UTC()
			driver.QueryResults = []vector.QueryResult{{
				Fact: fact.Fact{
					ID:        "n1",
					Owner:     owner,
					Content:   "Loves pizza",
					Category:  fact.CategoryPreference,
					Status:    fact.StatusActive,
					Embedding: []float32{1, 0, 0},
					CreatedAt: now,
					UpdatedAt: now,
				},
				Distance: 0.05,
			}}
			orch := newOrchestrator(driver, fastCfg)
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is now vegan", "category": "preference"}]}`,
				`{"memories": [{"id": "n1", "content": "Loves pizza", "category": "preference", "status": "outdated"}, {"id": "c-new", "content": "Is now vegan", "category": "preference", "status": "active"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan now", "Good to know"))
			Expect(err).NotTo(HaveOccurred(), "a partial failure is not a run failure")
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Err).To(MatchError(vector.ErrNotFound))
			Expect(result.Failed[0].Action.Op).To(Equal(consolidate.OpTransition))
			Expect(result.Committed).To(HaveLen(1))
			Expect(result.Committed[0].Content).To(Equal("Is now vegan"))

			event := events.last()
			Expect(event.Run.Stage).To(Equal("done"))
			Expect(event.Run.Failed).To(Equal(1))
		})

		It("recovers a transient commit failure by re-applying only the failed insert", func() {
			driver := testutils.NewMockVectorDriver()
			driver.FailNextUpserts = 1
			orch := newOrchestrator(driver, fastCfg)
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is vegan", "category": "preference"}, {"content": "Runs marathons", "category": "activity"}]}`,
			}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm a vegan runner", "Noted"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Stage).To(Equal(pipeline.StageDone))
			Expect(result.Failed).To(BeEmpty())
			Expect(result.Committed).To(HaveLen(2))
			Expect(driver.Facts).To(HaveLen(2))
			Expect(driver.Upserted).To(HaveLen(2), "one insert landed first try, the retry re-sent just the other")
		})

		It("fails the run when commit failures survive the retries", func() {
			driver := testutils.NewMockVectorDriver()
			driver.FailUpsert = true
			orch := newOrchestrator(driver, fastCfg)
			reasoner.Responses = []string{`{"facts": [{"content": "Is vegan", "category": "preference"}]}`}

			result, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I'm vegan", "Noted"))
			Expect(err).To(MatchError(vector.ErrUnavailable))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageCommitting))
			Expect(perr.Kind).To(Equal(pipeline.KindVectorStoreUnavailable))
			Expect(result.Stage).To(Equal(pipeline.StageFailed))
			Expect(result.Failed).To(HaveLen(1))
			Expect(events.last().Run.Stage).To(Equal("failed"))
		})

		It("fails with the cancelled kind when the context is already done", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			result, err := orch.ProcessWindow(cancelled, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).To(MatchError(context.Canceled))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageReceived))
			Expect(perr.Kind).To(Equal(pipeline.KindCancelled))
			Expect(result.Stage).To(Equal(pipeline.StageFailed))
			Expect(reasoner.Calls()).To(BeZero())
		})

		It("fails with the cancelled kind when cancelled mid-run", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			reasoner.Gate = make(chan struct{})
			cancelled, cancel := context.WithCancel(ctx)
			defer cancel()
			time.AfterFunc(30*time.Millisecond, cancel)

			_, err := orch.ProcessWindow(cancelled, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).To(MatchError(context.Canceled))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageExtracting))
			Expect(perr.Kind).To(Equal(pipeline.KindCancelled))
			Expect(reasoner.Calls()).To(Equal(1), "cancellation is not retried")
		})

		It("times out a stuck stage attempt and retries it", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, pipeline.Config{
				StageTimeout: 40 * time.Millisecond,
				MaxRetries:   1,
				RetryDelay:   time.Millisecond,
			})
			reasoner.Gate = make(chan struct{})

			_, err := orch.ProcessWindow(ctx, owner, testutils.NewTestWindow("I love pizza", "Nice"))
			Expect(err).To(MatchError(context.DeadlineExceeded))
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageExtracting))
			Expect(reasoner.Calls()).To(Equal(2), "each attempt gets its own deadline")
		})

		It("rejects an unknown conversation role", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			window := conversation.Window{conversation.NewTurn("system", "be nice")}

			result, err := orch.ProcessWindow(ctx, owner, window)
			Expect(err).To(HaveOccurred())
			perr := asPipelineError(err)
			Expect(perr.Stage).To(Equal(pipeline.StageReceived))
			Expect(perr.Kind).To(Equal(pipeline.KindInternal))
			Expect(result.Stage).To(Equal(pipeline.StageFailed))
			Expect(reasoner.Calls()).To(BeZero())
		})

		It("requires an owner", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)

			_, err := orch.ProcessWindow(ctx, "", testutils.NewTestWindow("hi", "hello"))
			Expect(err).To(MatchError(ContainSubstring("owner is required")))
			Expect(asPipelineError(err).Kind).To(Equal(pipeline.KindInternal))
		})

		It("serializes runs for the same owner", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			gate := make(chan struct{})
			reasoner.Gate = gate
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			done := make(chan error, 2)
			run := func() {
				defer GinkgoRecover()
				_, err := orch.ProcessWindow(ctx, owner, window)
				done <- err
			}

			go run()
			Eventually(reasoner.Calls).Should(Equal(1), "the first run reaches the reasoner")

			go run()
			Consistently(reasoner.Calls, "100ms").Should(Equal(1), "the second run waits on the owner lock")

			close(gate)
			Eventually(done, "2s").Should(Receive(BeNil()))
			Eventually(done, "2s").Should(Receive(BeNil()))
			Expect(reasoner.Calls()).To(Equal(2))
		})

		It("runs distinct owners concurrently", func() {
			store := inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch := newOrchestrator(store, fastCfg)
			gate := make(chan struct{})
			reasoner.Gate = gate
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			done := make(chan error, 2)
			run := func(who string) {
				defer GinkgoRecover()
				_, err := orch.ProcessWindow(ctx, who, window)
				done <- err
			}

			go run("owner-1")
			go run("owner-2")
			Eventually(reasoner.Calls).Should(Equal(2), "distinct owners must not block each other")

			close(gate)
			Eventually(done, "2s").Should(Receive(BeNil()))
			Eventually(done, "2s").Should(Receive(BeNil()))
		})
	})

	Describe("SearchFacts", func() {
		var (
			store *inmemory.Driver
			orch  *pipeline.Orchestrator
		)

		BeforeEach(func() {
			store = inmemory.NewDriver(inmemory.Config{Dimensions: 3})
			orch = newOrchestrator(store, fastCfg)
			seed(store, "f1", "Loves pizza", fact.StatusActive, []float32{1, 0, 0})
			seed(store, "f2", "Has a dog", fact.StatusActive, []float32{0, 1, 0})
		})

		It("returns the owner's nearest facts ranked by distance", func() {
			embedder.Embeddings["food"] = []float32{0.9, 0.1, 0}

			results, err := orch.SearchFacts(ctx, owner, "food", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Fact.ID).To(Equal("f1"))
			Expect(results[0].Distance).To(BeNumerically("<", results[1].Distance))
		})

		It("caps results at the limit", func() {
			embedder.Embeddings["food"] = []float32{0.9, 0.1, 0}

			results, err := orch.SearchFacts(ctx, owner, "food", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("returns outdated facts alongside active ones", func() {
			seed(store, "f3", "Loved sushi", fact.StatusOutdated, []float32{0.95, 0.05, 0})
			embedder.Embeddings["food"] = []float32{0.9, 0.1, 0}

			results, err := orch.SearchFacts(ctx, owner, "food", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			statuses := map[string]fact.Status{}
			for _, r := range results {
				statuses[r.Fact.ID] = r.Fact.Status
			}
			Expect(statuses["f3"]).To(Equal(fact.StatusOutdated))
		})

		It("requires an owner", func() {
			_, err := orch.SearchFacts(ctx, "", "food", 10)
			Expect(err).To(MatchError(ContainSubstring("owner is required")))
		})

		It("requires a query", func() {
			_, err := orch.SearchFacts(ctx, owner, "   ", 10)
			Expect(err).To(MatchError(ContainSubstring("query is required")))
		})

		It("passes through backend failures", func() {
			embedder.FailAll = true

			_, err := orch.SearchFacts(ctx, owner, "food", 10)
			Expect(err).To(MatchError(embeddings.ErrUnavailable))
		})
	})
})
