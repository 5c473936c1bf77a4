// Package fact defines the durable unit of memory in the engram system.
//
// A Fact is a distilled, categorized statement extracted from conversation,
// not a raw message. Facts are immutable once written: a changed fact is
// represented as a new Fact plus a status transition on the old one. The
// only mutation the system performs is the one-way active→outdated
// transition, which preserves history instead of destroying it.
package fact

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxContentLen is the upper bound on Fact content length in characters.
const MaxContentLen = 1000

// Category classifies what kind of knowledge a Fact captures.
type Category string

// The fixed set of fact categories.
const (
	CategoryPersonal      Category = "personal"
	CategoryPreference    Category = "preference"
	CategoryActivity      Category = "activity"
	CategoryPlan          Category = "plan"
	CategoryHealth        Category = "health"
	CategoryProfessional  Category = "professional"
	CategoryMiscellaneous Category = "miscellaneous"
)

// Categories returns all valid categories in a stable order.
func Categories() []Category {
	return []Category{
		CategoryPersonal,
		CategoryPreference,
		CategoryActivity,
		CategoryPlan,
		CategoryHealth,
		CategoryProfessional,
		CategoryMiscellaneous,
	}
}

// ParseCategory validates a raw category string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown fact category: %q", s)
}

// Status marks whether a Fact is current knowledge or superseded history.
type Status string

const (
	// StatusActive marks a Fact as current knowledge.
	StatusActive Status = "active"

	// StatusOutdated marks a Fact as superseded. Outdated Facts remain
	// retrievable; they are history, not garbage.
	StatusOutdated Status = "outdated"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive:
		return StatusActive, nil
	case StatusOutdated:
		return StatusOutdated, nil
	}
	return "", fmt.Errorf("unknown fact status: %q", s)
}

// Fact is a durable, owner-scoped unit of extracted memory.
type Fact struct {
	// ID is an opaque unique identifier, immutable once assigned.
	ID string `json:"id"`

	// Owner isolates facts per end-user. Every operation is scoped to
	// exactly one owner; there is no cross-owner visibility at any layer.
	Owner string `json:"owner"`

	// Content is the natural-language statement of the fact. Immutable
	// once written.
	Content string `json:"content"`

	// Category is one of the fixed enumeration of fact categories.
	Category Category `json:"category"`

	// Status is active or outdated. The transition is one-directional.
	Status Status `json:"status"`

	// Embedding is the vector derived from Content at write time. Its
	// dimensionality is fixed system-wide; a mismatch is a hard error.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt changes only on status transition, never on content.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a candidate Fact with a fresh id, active status, and no
// embedding. Timestamps are assigned by the commit writer, not here.
func New(owner, content string, category Category) (Fact, error) {
	f := Fact{
		ID:       uuid.NewString(),
		Owner:    owner,
		Content:  content,
		Category: category,
		Status:   StatusActive,
	}
	if err := f.Validate(); err != nil {
		return Fact{}, err
	}
	return f, nil
}

// Validate checks the Fact's structural invariants.
func (f Fact) Validate() error {
	if f.ID == "" {
		return errors.New("fact id is required")
	}
	if f.Owner == "" {
		return errors.New("fact owner is required")
	}
	if f.Content == "" {
		return errors.New("fact content is required")
	}
	if n := len([]rune(f.Content)); n > MaxContentLen {
		return fmt.Errorf("fact content is %d characters, max is %d", n, MaxContentLen)
	}
	if _, err := ParseCategory(string(f.Category)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(f.Status)); err != nil {
		return err
	}
	return nil
}
