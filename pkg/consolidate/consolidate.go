// Package consolidate reconciles a window's candidate facts against the
// owner's stored neighbors and produces a commit plan: which facts to
// insert and which existing facts to mark outdated.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/reasoning"
)

const consolidationPrompt = `You are a memory consolidation system responsible for identifying new memories and memory updates from recent conversations. You will receive two lists of memory JSON objects:

1. Existing memories: previously stored facts from the user's history
2. New memories: newly extracted facts from the recent conversation

Your task is to return ONLY the memories that should be added or updated, using the following rules:

Consolidation rules:
1. New memories: return new memories that do not conflict with existing memories.
2. Updated memories: when the user is correcting a previous memory, or a preference or status has changed, return the conflicting existing memory with status "outdated" AND the new memory with status "active".
3. Identical memories: return an empty list when new memories are identical or substantially similar to existing memories.

Memory JSON structure:
- id: unique identifier
- content: the memory text
- category: one of personal, preference, activity, plan, health, professional, miscellaneous
- status: "active" (default) or "outdated"

Respond with JSON of the form: {"memories": [{"id": "...", "content": "...", "category": "...", "status": "..."}]}

Examples:

Input:
Existing memories:
{"id": "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "content": "Name is John", "category": "personal", "status": "active"}
New memories:
{"id": "b2c3d4e5-f6a7-8901-bcde-f23456789012", "content": "Name is Jane", "category": "personal", "status": "active"}
Output: {"memories": [{"id": "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "content": "Name is John", "category": "personal", "status": "outdated"}, {"id": "b2c3d4e5-f6a7-8901-bcde-f23456789012", "content": "Name is Jane", "category": "personal", "status": "active"}]}

Input:
Existing memories:
{"id": "c3d4e5f6-a7b8-9012-cdef-345678901234", "content": "Loves pizza", "category": "preference", "status": "active"}
New memories:
{"id": "d4e5f6a7-b8c9-0123-defa-456789012345", "content": "Dislikes pizza now", "category": "preference", "status": "active"}
Output: {"memories": [{"id": "c3d4e5f6-a7b8-9012-cdef-345678901234", "content": "Loves pizza", "category": "preference", "status": "outdated"}, {"id": "d4e5f6a7-b8c9-0123-defa-456789012345", "content": "Dislikes pizza now", "category": "preference", "status": "active"}]}

Input:
Existing memories:
{"id": "e5f6a7b8-c9d0-1234-efab-567890123456", "content": "Works as engineer", "category": "professional", "status": "active"}
New memories:
{"id": "f6a7b8c9-d0e1-2345-fabc-678901234567", "content": "Had lunch with Sarah", "category": "activity", "status": "active"}
Output: {"memories": [{"id": "f6a7b8c9-d0e1-2345-fabc-678901234567", "content": "Had lunch with Sarah", "category": "activity", "status": "active"}]}

Input:
Existing memories:
{"id": "a7b8c9d0-e1f2-3456-abcd-789012345678", "content": "Name is John", "category": "personal", "status": "active"}
New memories:
{"id": "b8c9d0e1-f2a3-4567-bcde-890123456789", "content": "user's name is john", "category": "personal", "status": "active"}
Output: {"memories": []}

Remember:
- Return only memories that need to be written; unchanged existing memories must not be returned.
- When a correction or change occurs, return both the outdated existing memory and the new active memory.
- Keep the id of an existing memory when marking it outdated, and the id of a new memory when adding it.
- Default status is "active" for new memories.`

// memoryItem is the wire form of one fact in the consolidation exchange.
type memoryItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// response is the JSON shape the consolidation prompt asks for.
type response struct {
	Memories []memoryItem `json:"memories"`
}

// Validate rejects responses that cannot become a commit plan: an outdated
// memory without an id, or an active memory with missing or oversized
// content or an unknown category. An empty memories list is valid; it
// means nothing in the window needs writing.
func (r response) Validate() error {
	for i, m := range r.Memories {
		status, err := fact.ParseStatus(normalizeField(m.Status, string(fact.StatusActive)))
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		switch status {
		case fact.StatusOutdated:
			if strings.TrimSpace(m.ID) == "" {
				return fmt.Errorf("memory %d: outdated memory needs an id", i)
			}
		case fact.StatusActive:
			if strings.TrimSpace(m.Content) == "" {
				return fmt.Errorf("memory %d: content is required", i)
			}
			if n := len([]rune(m.Content)); n > fact.MaxContentLen {
				return fmt.Errorf("memory %d: content is %d characters, max is %d", i, n, fact.MaxContentLen)
			}
			if _, err := fact.ParseCategory(normalizeField(m.Category, "")); err != nil {
				return fmt.Errorf("memory %d: %w", i, err)
			}
		}
	}
	return nil
}

func normalizeField(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return s
}

// Config holds settings for the consolidator.
type Config struct {
	// SchemaRetries is how many times a malformed model response is
	// re-asked before the window fails. Negative means the gateway default.
	SchemaRetries int
}

// Consolidator asks the reasoner to classify candidates against their
// stored neighbors and maps the answer onto insert and transition actions.
type Consolidator struct {
	reasoner      reasoning.Reasoner
	schemaRetries int
	logger        *zap.Logger
}

// NewConsolidator creates a consolidator on top of the given reasoner.
func NewConsolidator(r reasoning.Reasoner, cfg Config, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		reasoner:      r,
		schemaRetries: cfg.SchemaRetries,
		logger:        logger,
	}
}

// Consolidate produces the commit plan for one window. With no candidates
// the plan is empty. With candidates but no stored neighbors there is
// nothing to conflict with, so every candidate becomes an insert without a
// reasoning call. Otherwise classification is one reasoner call for the
// whole window.
func (c *Consolidator) Consolidate(ctx context.Context, owner string, candidates, neighbors []fact.Fact) (Plan, error) {
	plan := Plan{Owner: owner}
	if len(candidates) == 0 {
		return plan, nil
	}

	if len(neighbors) == 0 {
		for _, cand := range candidates {
			plan.Actions = append(plan.Actions, Action{Op: OpInsert, Fact: cand})
		}
		c.logger.Debug("no stored neighbors, inserting all candidates",
			zap.String("owner", owner),
			zap.Int("inserts", len(plan.Actions)),
		)
		return plan, nil
	}

	prompt, err := buildPrompt(neighbors, candidates)
	if err != nil {
		return Plan{}, fmt.Errorf("building consolidation prompt: %w", err)
	}

	resp, err := reasoning.Infer[response](ctx, c.reasoner, prompt, c.schemaRetries)
	if err != nil {
		return Plan{}, fmt.Errorf("consolidating facts: %w", err)
	}

	byCandidate := make(map[string]fact.Fact, len(candidates))
	for _, cand := range candidates {
		byCandidate[cand.ID] = cand
	}
	neighborIDs := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		neighborIDs[n.ID] = struct{}{}
	}

	inserted := make(map[string]struct{})
	transitioned := make(map[string]struct{})
	for _, m := range resp.Memories {
		id := strings.TrimSpace(m.ID)
		status, _ := fact.ParseStatus(normalizeField(m.Status, string(fact.StatusActive)))

		switch status {
		case fact.StatusOutdated:
			if _, ok := neighborIDs[id]; !ok {
				// The model can only outdate facts it was shown.
				c.logger.Warn("ignoring transition for unknown fact",
					zap.String("owner", owner),
					zap.String("id", id),
				)
				continue
			}
			if _, dup := transitioned[id]; dup {
				continue
			}
			transitioned[id] = struct{}{}
			plan.Actions = append(plan.Actions, Action{Op: OpTransition, TargetID: id})

		case fact.StatusActive:
			if _, ok := neighborIDs[id]; ok {
				// Already stored and still active; nothing to write.
				continue
			}
			f, err := c.activeFact(owner, byCandidate, m)
			if err != nil {
				return Plan{}, fmt.Errorf("%w: %v", reasoning.ErrSchemaViolation, err)
			}
			if _, dup := inserted[f.ID]; dup {
				continue
			}
			inserted[f.ID] = struct{}{}
			plan.Actions = append(plan.Actions, Action{Op: OpInsert, Fact: f})
		}
	}

	c.logger.Debug("consolidated window",
		zap.String("owner", owner),
		zap.Int("candidates", len(candidates)),
		zap.Int("neighbors", len(neighbors)),
		zap.Int("inserts", len(inserted)),
		zap.Int("transitions", len(transitioned)),
	)
	return plan, nil
}

// activeFact maps an active response memory onto a fact to insert. A memory
// echoing a candidate id keeps that candidate's identity and embedding,
// unless the model reworded the content, which invalidates the embedding.
// Anything else is a model-authored fact and gets a fresh id.
func (c *Consolidator) activeFact(owner string, byCandidate map[string]fact.Fact, m memoryItem) (fact.Fact, error) {
	content := strings.TrimSpace(m.Content)
	category, err := fact.ParseCategory(normalizeField(m.Category, ""))
	if err != nil {
		return fact.Fact{}, err
	}

	if cand, ok := byCandidate[strings.TrimSpace(m.ID)]; ok {
		if content != cand.Content {
			cand.Content = content
			cand.Embedding = nil
		}
		cand.Category = category
		return cand, nil
	}
	return fact.New(owner, content, category)
}

func buildPrompt(neighbors, candidates []fact.Fact) (string, error) {
	var b strings.Builder
	b.WriteString(consolidationPrompt)
	b.WriteString("\n\nExisting memories:\n")
	if err := writeItems(&b, neighbors); err != nil {
		return "", err
	}
	b.WriteString("New memories:\n")
	if err := writeItems(&b, candidates); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeItems(b *strings.Builder, facts []fact.Fact) error {
	for _, f := range facts {
		raw, err := json.Marshal(memoryItem{
			ID:       f.ID,
			Content:  f.Content,
			Category: string(f.Category),
			Status:   string(f.Status),
		})
		if err != nil {
			return err
		}
		b.Write(raw)
		b.WriteByte('\n')
	}
	return nil
}
