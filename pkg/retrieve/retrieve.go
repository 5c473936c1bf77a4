// Package retrieve finds the stored facts nearest to query text or to a
// window's candidate facts.
package retrieve

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/embeddings"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

const (
	// DefaultLimit caps how many similar facts one query returns.
	DefaultLimit = 10

	// DefaultConcurrency bounds parallel neighbor lookups within a window.
	DefaultConcurrency = 4
)

// Config holds settings for the retriever.
type Config struct {
	// Limit is the per-query result cap. Zero or negative selects
	// DefaultLimit.
	Limit int

	// Concurrency bounds parallel per-candidate lookups. Zero or negative
	// selects DefaultConcurrency.
	Concurrency int
}

// Retriever embeds text and runs owner-scoped nearest-neighbor queries
// against the fact store.
type Retriever struct {
	embedder    embeddings.Embedder
	store       vector.Driver
	limit       int
	concurrency int
	logger      *zap.Logger
}

// NewRetriever creates a retriever over the given embedder and store.
func NewRetriever(embedder embeddings.Embedder, store vector.Driver, cfg Config, logger *zap.Logger) *Retriever {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		limit:       limit,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Search embeds the query text and returns the owner's nearest facts,
// closest first. A limit of zero or less selects the configured default.
func (r *Retriever) Search(ctx context.Context, owner, text string, limit int) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = r.limit
	}

	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}

	results, err := r.store.Query(ctx, owner, emb, limit)
	if err != nil {
		return nil, fmt.Errorf("querying similar facts: %w", err)
	}

	r.logger.Debug("searched facts",
		zap.String("owner", owner),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Neighbors embeds every candidate and queries the owner's stored facts
// nearest to each, with bounded concurrency. It returns the candidates with
// embeddings populated, in input order, plus the union of every neighbor
// set deduplicated by id. Any single lookup failure fails the whole batch.
func (r *Retriever) Neighbors(ctx context.Context, owner string, candidates []fact.Fact) ([]fact.Fact, []fact.Fact, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	embedded := make([]fact.Fact, len(candidates))
	perCandidate := make([][]vector.QueryResult, len(candidates))
	errs := make([]error, len(candidates))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, c fact.Fact) {
			defer wg.Done()
			defer func() { <-sem }()

			emb := c.Embedding
			if len(emb) == 0 {
				var err error
				emb, err = r.embedder.Embed(ctx, c.Content)
				if err != nil {
					errs[i] = fmt.Errorf("embedding candidate %s: %w", c.ID, err)
					return
				}
			}
			c.Embedding = emb
			embedded[i] = c

			results, err := r.store.Query(ctx, owner, emb, r.limit)
			if err != nil {
				errs[i] = fmt.Errorf("querying neighbors of %s: %w", c.ID, err)
				return
			}
			perCandidate[i] = results
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	// Flatten in candidate order, keeping each stored fact once even when
	// several candidates retrieve it.
	seen := make(map[string]struct{})
	var neighbors []fact.Fact
	for _, results := range perCandidate {
		for _, res := range results {
			if _, ok := seen[res.Fact.ID]; ok {
				continue
			}
			seen[res.Fact.ID] = struct{}{}
			neighbors = append(neighbors, res.Fact)
		}
	}

	r.logger.Debug("retrieved neighbors",
		zap.String("owner", owner),
		zap.Int("candidates", len(candidates)),
		zap.Int("neighbors", len(neighbors)),
	)
	return embedded, neighbors, nil
}
