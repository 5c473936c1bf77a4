package reasoning_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/reasoning"
	testutils "github.com/engramlabs/engram/pkg/utils/test"
)

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (p testPayload) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

var _ = Describe("Infer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should decode a clean JSON response", func() {
		mock := testutils.NewMockReasoner(`{"name": "alice", "count": 3}`)

		out, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Name).To(Equal("alice"))
		Expect(out.Count).To(Equal(3))
		Expect(mock.Calls()).To(Equal(1))
	})

	It("should strip prose and markdown fences around the JSON", func() {
		mock := testutils.NewMockReasoner("Here you go:\n```json\n{\"name\": \"bob\", \"count\": 1}\n```\nHope that helps!")

		out, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Name).To(Equal("bob"))
	})

	It("should re-ask after a malformed response", func() {
		mock := testutils.NewMockReasoner(
			"sorry, I can't do that",
			`{"name": "carol", "count": 2}`,
		)

		out, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Name).To(Equal("carol"))
		Expect(mock.Calls()).To(Equal(2))
	})

	It("should report a schema violation once the retry budget is exhausted", func() {
		mock := testutils.NewMockReasoner("not json at all")

		_, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 2)
		Expect(err).To(MatchError(reasoning.ErrSchemaViolation))
		Expect(mock.Calls()).To(Equal(3))
	})

	It("should treat a failed payload validation as malformed", func() {
		mock := testutils.NewMockReasoner(`{"count": 5}`)

		_, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 0)
		Expect(err).To(MatchError(reasoning.ErrSchemaViolation))
		Expect(err.Error()).To(ContainSubstring("name is required"))
	})

	It("should return transport failures without re-asking", func() {
		mock := testutils.NewMockReasoner(`{"name": "dave"}`)
		mock.FailComplete = true

		_, err := reasoning.Infer[testPayload](ctx, mock, "prompt", 2)
		Expect(err).To(MatchError(reasoning.ErrUnavailable))
		Expect(mock.Calls()).To(Equal(1))
	})

	It("should stop immediately when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		mock := testutils.NewMockReasoner(`{"name": "erin"}`)
		_, err := reasoning.Infer[testPayload](cancelled, mock, "prompt", 2)
		Expect(err).To(MatchError(context.Canceled))
		Expect(mock.Calls()).To(Equal(0))
	})
})
