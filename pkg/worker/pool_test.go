package worker

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/commit"
	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/extract"
	"github.com/engramlabs/engram/pkg/pipeline"
	"github.com/engramlabs/engram/pkg/retrieve"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
)

// recordedJob pairs a finished job with its pipeline outcome.
type recordedJob struct {
	job    Job
	result pipeline.Result
	err    error
}

// jobRecorder collects OnDone callbacks from worker goroutines.
type jobRecorder struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (r *jobRecorder) record(job Job, result pipeline.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, recordedJob{job: job, result: result, err: err})
}

func (r *jobRecorder) all() []recordedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedJob(nil), r.jobs...)
}

var _ = Describe("Worker Pool", func() {
	var (
		ctx      context.Context
		reasoner *testutils.MockReasoner
		store    *inmemory.Driver
		recorder *jobRecorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		reasoner = testutils.NewMockReasoner()
		store = inmemory.NewDriver(inmemory.Config{Dimensions: 3})
		recorder = &jobRecorder{}
	})

	newTestPool := func(numWorkers, queueSize uint) *Pool {
		logger := zap.NewNop()
		embedder := testutils.NewMockEmbedder()
		orch := pipeline.NewOrchestrator(pipeline.Deps{
			Extractor:    extract.NewExtractor(reasoner, extract.Config{}, logger),
			Retriever:    retrieve.NewRetriever(embedder, store, retrieve.Config{}, logger),
			Consolidator: consolidate.NewConsolidator(reasoner, consolidate.Config{}, logger),
			Writer:       commit.NewWriter(embedder, store, commit.Config{}, logger),
			Store:        store,
			Logger:       logger,
		}, pipeline.Config{
			StageTimeout: 2 * time.Second,
			MaxRetries:   2,
			RetryDelay:   time.Millisecond,
		})

		wp, err := NewPool(&Config{
			Orchestrator: orch,
			NumWorkers:   numWorkers,
			QueueSize:    queueSize,
			OnDone:       recorder.record,
			Logger:       logger,
		})
		Expect(err).NotTo(HaveOccurred())
		return wp
	}

	It("requires an orchestrator", func() {
		_, err := NewPool(&Config{Logger: zap.NewNop()})
		Expect(err).To(MatchError(ContainSubstring("orchestrator")))
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp := newTestPool(0, 0)
			reasoner.Responses = []string{`{"facts": []}`}

			ok := wp.Enqueue(Job{
				Owner:  "owner-1",
				Window: testutils.NewTestWindow("hello", "hi"),
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("drops the job when the queue is full", func() {
			wp := newTestPool(1, 1)
			gate := make(chan struct{})
			reasoner.Gate = gate
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			Expect(wp.Enqueue(Job{Owner: "owner-1", Window: window})).To(BeTrue())
			Eventually(reasoner.Calls).Should(Equal(1), "the single worker holds the first job")

			Expect(wp.Enqueue(Job{Owner: "owner-2", Window: window})).To(BeTrue(), "second job fills the buffer")
			Expect(wp.Enqueue(Job{Owner: "owner-3", Window: window})).To(BeFalse(), "third job finds no room")

			close(gate)
			wp.Close()
			Expect(recorder.all()).To(HaveLen(2))
		})
	})

	Describe("EnqueueWait", func() {
		It("gives up when the context ends before the queue has room", func() {
			wp := newTestPool(1, 1)
			gate := make(chan struct{})
			reasoner.Gate = gate
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			Expect(wp.Enqueue(Job{Owner: "owner-1", Window: window})).To(BeTrue())
			Eventually(reasoner.Calls).Should(Equal(1))
			Expect(wp.Enqueue(Job{Owner: "owner-2", Window: window})).To(BeTrue())

			waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			err := wp.EnqueueWait(waitCtx, Job{Owner: "owner-3", Window: window})
			Expect(err).To(MatchError(context.DeadlineExceeded))

			close(gate)
			wp.Close()
		})

		It("submits once a worker frees the queue", func() {
			wp := newTestPool(1, 1)
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			for i := 0; i < 5; i++ {
				Expect(wp.EnqueueWait(ctx, Job{Owner: "owner-1", Window: window})).To(Succeed())
			}
			wp.Close()
			Expect(recorder.all()).To(HaveLen(5))
		})
	})

	Describe("ingestion", func() {
		It("runs queued windows through the pipeline into the store", func() {
			wp := newTestPool(2, 0)
			reasoner.Responses = []string{
				`{"facts": [{"content": "Is vegan", "category": "preference"}]}`,
			}

			Expect(wp.Enqueue(Job{
				Owner:  "owner-1",
				Window: testutils.NewTestWindow("I'm vegan", "Noted"),
			})).To(BeTrue())
			wp.Close()

			stored, err := store.List(ctx, "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Content).To(Equal("Is vegan"))

			finished := recorder.all()
			Expect(finished).To(HaveLen(1))
			Expect(finished[0].err).NotTo(HaveOccurred())
			Expect(finished[0].result.Stage).To(Equal(pipeline.StageDone))
			Expect(finished[0].result.Committed).To(HaveLen(1))
		})

		It("reports pipeline failures through the observer", func() {
			wp := newTestPool(1, 0)
			reasoner.FailComplete = true

			Expect(wp.Enqueue(Job{
				Owner:  "owner-1",
				Window: testutils.NewTestWindow("I'm vegan", "Noted"),
			})).To(BeTrue())
			wp.Close()

			finished := recorder.all()
			Expect(finished).To(HaveLen(1))
			Expect(finished[0].err).To(HaveOccurred())
			Expect(finished[0].result.Stage).To(Equal(pipeline.StageFailed))

			stored, err := store.List(ctx, "owner-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeEmpty())
		})

		It("drains in-flight jobs on close", func() {
			wp := newTestPool(3, 0)
			reasoner.Responses = []string{`{"facts": []}`}

			window := testutils.NewTestWindow("hello", "hi")
			for i := 0; i < 10; i++ {
				Expect(wp.Enqueue(Job{Owner: "owner-1", Window: window})).To(BeTrue())
			}
			wp.Close()
			Expect(recorder.all()).To(HaveLen(10))
		})
	})
})
