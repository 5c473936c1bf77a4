// Package extract turns a conversation window into candidate facts about
// its owner using the reasoning gateway.
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/conversation"
	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/reasoning"
)

const extractionPrompt = `You are a personal information organizer, specialized in accurately storing facts, user memories, and preferences. Your job is to extract relevant pieces of information from a conversation between a user and an assistant and organize them into distinct, manageable facts about the user.

Types of information to remember:
1. Personal details: names, relationships, important dates.
2. Preferences: likes, dislikes, and specific preferences in categories such as food, products, activities, and entertainment.
3. Activities: things the user is doing or has done, such as dining, travel, and hobbies.
4. Plans and intentions: upcoming events, trips, goals, and any plans the user has shared.
5. Health and wellness: dietary restrictions, fitness routines, and other wellness information.
6. Professional details: job titles, work habits, career goals.
7. Miscellaneous: favorite books, movies, brands, and other details the user shares about themselves.

Classify each fact with exactly one category from: personal, preference, activity, plan, health, professional, miscellaneous.

Respond with JSON of the form: {"facts": [{"content": "...", "category": "..."}]}

Examples:

Input:
[user] Hi
[assistant] Hello! How can I help you today?
[user] There are branches in trees
[assistant] Yes, trees have branches that grow from the trunk and main stems.
Output: {"facts": []}

Input:
[user] Hi, I am a food critic looking for a restaurant in San Francisco
[assistant] I'd be happy to help you find a restaurant in San Francisco. What type of cuisine are you interested in?
[user] Japanese
[assistant] Great choice! Are you looking for sushi, ramen, or a particular type of Japanese food?
Output: {"facts": [{"content": "Is a food critic", "category": "professional"}, {"content": "Looking for a restaurant in San Francisco", "category": "activity"}, {"content": "Prefers Japanese cuisine", "category": "preference"}]}

Input:
[user] Hi, my name is John. I am a software engineer
[assistant] Nice to meet you, John! What kind of projects do you work on?
[user] My favourite movies are Inception and Interstellar
[assistant] Great taste in movies! Both are Christopher Nolan films with complex narratives.
Output: {"facts": [{"content": "Name is John", "category": "personal"}, {"content": "Is a software engineer", "category": "professional"}, {"content": "Favourite movies are Inception and Interstellar", "category": "preference"}]}

Remember:
- Do not return anything from the examples above.
- If there is nothing relevant in the conversation, return an empty list for the "facts" key.
- Extract facts from the user and assistant messages only; ignore anything else.
- Be flexible in how people express information: capture the core meaning even when stated casually or indirectly.
- Detect the language of the user's messages and record the facts in the same language.

Extract the relevant facts about the user, if any, from the following conversation.`

// candidate is one extracted fact in the model's response.
type candidate struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// response is the JSON shape the extraction prompt asks for.
type response struct {
	Facts []candidate `json:"facts"`
}

// Validate rejects responses the pipeline cannot commit: empty content,
// content over the fact cap, or a category outside the known set. An empty
// facts list is valid; filler conversations carry nothing worth keeping.
func (r response) Validate() error {
	for i, c := range r.Facts {
		if strings.TrimSpace(c.Content) == "" {
			return fmt.Errorf("fact %d: content is required", i)
		}
		if n := len([]rune(c.Content)); n > fact.MaxContentLen {
			return fmt.Errorf("fact %d: content is %d characters, max is %d", i, n, fact.MaxContentLen)
		}
		if _, err := fact.ParseCategory(normalizeCategory(c.Category)); err != nil {
			return fmt.Errorf("fact %d: %w", i, err)
		}
	}
	return nil
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Config holds settings for the extractor.
type Config struct {
	// SchemaRetries is how many times a malformed model response is
	// re-asked before the window fails. Negative means the gateway default.
	SchemaRetries int
}

// Extractor asks the reasoner for the facts a conversation window reveals
// about its owner.
type Extractor struct {
	reasoner      reasoning.Reasoner
	schemaRetries int
	logger        *zap.Logger
}

// NewExtractor creates an extractor on top of the given reasoner.
func NewExtractor(r reasoning.Reasoner, cfg Config, logger *zap.Logger) *Extractor {
	return &Extractor{
		reasoner:      r,
		schemaRetries: cfg.SchemaRetries,
		logger:        logger,
	}
}

// Extract returns candidate facts for the window: fresh ids, active status,
// no embedding. An empty window or a window with nothing worth keeping
// yields an empty slice, not an error.
func (e *Extractor) Extract(ctx context.Context, owner string, window conversation.Window) ([]fact.Fact, error) {
	if len(window) == 0 {
		return nil, nil
	}

	prompt := extractionPrompt + "\n\nConversation:\n" + window.Transcript()

	resp, err := reasoning.Infer[response](ctx, e.reasoner, prompt, e.schemaRetries)
	if err != nil {
		return nil, fmt.Errorf("extracting facts: %w", err)
	}

	candidates := make([]fact.Fact, 0, len(resp.Facts))
	for _, c := range resp.Facts {
		category, err := fact.ParseCategory(normalizeCategory(c.Category))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", reasoning.ErrSchemaViolation, err)
		}
		f, err := fact.New(owner, strings.TrimSpace(c.Content), category)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", reasoning.ErrSchemaViolation, err)
		}
		candidates = append(candidates, f)
	}

	e.logger.Debug("extracted candidate facts",
		zap.String("owner", owner),
		zap.Int("turns", len(window)),
		zap.Int("candidates", len(candidates)),
	)

	return candidates, nil
}
