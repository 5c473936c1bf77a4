package sqlitevec_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/sqlitevec"
)

var _ = Describe("SQLiteVec Driver", func() {
	var (
		logger *zap.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = zap.NewNop()
		ctx = context.Background()
	})

	mkFact := func(id, owner, content string, embedding []float32, created time.Time) fact.Fact {
		return fact.Fact{
			ID:        id,
			Owner:     owner,
			Content:   content,
			Category:  fact.CategoryMiscellaneous,
			Status:    fact.StatusActive,
			Embedding: embedding,
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	Describe("NewDriver", func() {
		It("should fail when the database path is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{Dimensions: 4}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should fail when dimensions are not positive", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("dimensions"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, logger)
			Expect(err).ToNot(HaveOccurred())
			Expect(driver).ToNot(BeNil())
			Expect(driver.Close()).To(Succeed())
		})
	})

	Describe("Driver operations", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:", Dimensions: 4}, logger)
			Expect(err).ToNot(HaveOccurred())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		Describe("Upsert", func() {
			It("should store facts retrievable by id", func() {
				f := mkFact("f1", "alice", "lives in Lisbon", []float32{1, 0, 0, 0}, time.Now().UTC())
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(got[0].Content).To(Equal("lives in Lisbon"))
				Expect(got[0].Embedding).To(Equal([]float32{1, 0, 0, 0}))
			})

			It("should overwrite an existing fact with the same id", func() {
				created := time.Now().UTC()
				f := mkFact("f1", "alice", "lives in Lisbon", []float32{1, 0, 0, 0}, created)
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				f.Content = "lives in Porto"
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(got[0].Content).To(Equal("lives in Porto"))

				all, err := driver.List(ctx, "alice")
				Expect(err).ToNot(HaveOccurred())
				Expect(all).To(HaveLen(1))
			})

			It("should reject embeddings with the wrong dimensions", func() {
				f := mkFact("f1", "alice", "short vector", []float32{1, 0}, time.Now().UTC())
				err := driver.Upsert(ctx, []fact.Fact{f})
				Expect(err).To(HaveOccurred())
				Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			})

			It("should accept an empty batch", func() {
				Expect(driver.Upsert(ctx, nil)).To(Succeed())
			})
		})

		Describe("Query", func() {
			BeforeEach(func() {
				now := time.Now().UTC()
				facts := []fact.Fact{
					mkFact("close", "alice", "closest", []float32{1, 0, 0, 0}, now.Add(-3*time.Hour)),
					mkFact("mid", "alice", "middling", []float32{0.7, 0.7, 0, 0}, now.Add(-2*time.Hour)),
					mkFact("far", "alice", "farthest", []float32{0, 1, 0, 0}, now.Add(-1*time.Hour)),
					mkFact("other", "bob", "someone else", []float32{1, 0, 0, 0}, now),
				}
				Expect(driver.Upsert(ctx, facts)).To(Succeed())
			})

			It("should order results by cosine distance ascending", func() {
				results, err := driver.Query(ctx, "alice", []float32{1, 0, 0, 0}, 10)
				Expect(err).ToNot(HaveOccurred())
				Expect(results).To(HaveLen(3))
				Expect(results[0].Fact.ID).To(Equal("close"))
				Expect(results[1].Fact.ID).To(Equal("mid"))
				Expect(results[2].Fact.ID).To(Equal("far"))
				Expect(results[0].Distance).To(BeNumerically("<=", results[1].Distance))
				Expect(results[1].Distance).To(BeNumerically("<=", results[2].Distance))
			})

			It("should never return facts belonging to another owner", func() {
				results, err := driver.Query(ctx, "alice", []float32{1, 0, 0, 0}, 10)
				Expect(err).ToNot(HaveOccurred())
				for _, r := range results {
					Expect(r.Fact.Owner).To(Equal("alice"))
				}
			})

			It("should cap results at the limit", func() {
				results, err := driver.Query(ctx, "alice", []float32{1, 0, 0, 0}, 2)
				Expect(err).ToNot(HaveOccurred())
				Expect(results).To(HaveLen(2))
			})

			It("should break distance ties by newest creation time first", func() {
				now := time.Now().UTC()
				tied := []fact.Fact{
					mkFact("old-tie", "carol", "older twin", []float32{0, 0, 1, 0}, now.Add(-time.Hour)),
					mkFact("new-tie", "carol", "newer twin", []float32{0, 0, 1, 0}, now),
				}
				Expect(driver.Upsert(ctx, tied)).To(Succeed())

				results, err := driver.Query(ctx, "carol", []float32{0, 0, 1, 0}, 10)
				Expect(err).ToNot(HaveOccurred())
				Expect(results).To(HaveLen(2))
				Expect(results[0].Fact.ID).To(Equal("new-tie"))
				Expect(results[1].Fact.ID).To(Equal("old-tie"))
			})

			It("should return empty results for an owner with no facts", func() {
				results, err := driver.Query(ctx, "nobody", []float32{1, 0, 0, 0}, 10)
				Expect(err).ToNot(HaveOccurred())
				Expect(results).To(BeEmpty())
			})
		})

		Describe("UpdateStatus", func() {
			It("should change only the status and updated_at", func() {
				created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
				f := mkFact("f1", "alice", "was a vegetarian", []float32{1, 0, 0, 0}, created)
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				transitioned := time.Now().UTC().Truncate(time.Second)
				Expect(driver.UpdateStatus(ctx, "f1", fact.StatusOutdated, transitioned)).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(got[0].Status).To(Equal(fact.StatusOutdated))
				Expect(got[0].Content).To(Equal("was a vegetarian"))
				Expect(got[0].CreatedAt).To(BeTemporally("~", created, time.Second))
				Expect(got[0].UpdatedAt).To(BeTemporally("~", transitioned, time.Second))
			})

			It("should be idempotent for an already-outdated fact", func() {
				f := mkFact("f1", "alice", "old plan", []float32{1, 0, 0, 0}, time.Now().UTC())
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				ts := time.Now().UTC()
				Expect(driver.UpdateStatus(ctx, "f1", fact.StatusOutdated, ts)).To(Succeed())
				Expect(driver.UpdateStatus(ctx, "f1", fact.StatusOutdated, ts)).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got[0].Status).To(Equal(fact.StatusOutdated))
			})

			It("should report missing facts", func() {
				err := driver.UpdateStatus(ctx, "ghost", fact.StatusOutdated, time.Now().UTC())
				Expect(err).To(MatchError(vector.ErrNotFound))
			})
		})

		Describe("Get", func() {
			It("should skip ids that do not exist", func() {
				f := mkFact("f1", "alice", "real", []float32{1, 0, 0, 0}, time.Now().UTC())
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1", "ghost"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(got[0].ID).To(Equal("f1"))
			})

			It("should not return facts owned by someone else", func() {
				f := mkFact("f1", "bob", "private", []float32{1, 0, 0, 0}, time.Now().UTC())
				Expect(driver.Upsert(ctx, []fact.Fact{f})).To(Succeed())

				got, err := driver.Get(ctx, "alice", []string{"f1"})
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(BeEmpty())
			})
		})

		Describe("List", func() {
			It("should return the owner's facts newest first", func() {
				now := time.Now().UTC()
				facts := []fact.Fact{
					mkFact("oldest", "alice", "first", []float32{1, 0, 0, 0}, now.Add(-2*time.Hour)),
					mkFact("newest", "alice", "third", []float32{0, 1, 0, 0}, now),
					mkFact("middle", "alice", "second", []float32{0, 0, 1, 0}, now.Add(-time.Hour)),
				}
				Expect(driver.Upsert(ctx, facts)).To(Succeed())

				all, err := driver.List(ctx, "alice")
				Expect(err).ToNot(HaveOccurred())
				Expect(all).To(HaveLen(3))
				Expect(all[0].ID).To(Equal("newest"))
				Expect(all[1].ID).To(Equal("middle"))
				Expect(all[2].ID).To(Equal("oldest"))
			})
		})

		Describe("Purge", func() {
			It("should delete only the owner's facts", func() {
				now := time.Now().UTC()
				facts := []fact.Fact{
					mkFact("a1", "alice", "mine", []float32{1, 0, 0, 0}, now),
					mkFact("b1", "bob", "his", []float32{0, 1, 0, 0}, now),
				}
				Expect(driver.Upsert(ctx, facts)).To(Succeed())

				Expect(driver.Purge(ctx, "alice")).To(Succeed())

				aliceFacts, err := driver.List(ctx, "alice")
				Expect(err).ToNot(HaveOccurred())
				Expect(aliceFacts).To(BeEmpty())

				bobFacts, err := driver.List(ctx, "bob")
				Expect(err).ToNot(HaveOccurred())
				Expect(bobFacts).To(HaveLen(1))
			})
		})
	})
})

var _ vector.Driver = (*sqlitevec.Driver)(nil)
