package consolidate

import "github.com/engramlabs/engram/pkg/fact"

// Op distinguishes the two kinds of commit action.
type Op string

const (
	// OpInsert writes a new active fact.
	OpInsert Op = "insert"

	// OpTransition marks an existing fact outdated.
	OpTransition Op = "transition"
)

// Action is a single step of a commit plan: either insert a new fact or
// transition an existing one to outdated.
type Action struct {
	Op Op `json:"op"`

	// Fact is the record to insert. Meaningful only when Op is OpInsert.
	Fact fact.Fact `json:"fact"`

	// TargetID names the stored fact to mark outdated. Meaningful only
	// when Op is OpTransition.
	TargetID string `json:"target_id,omitempty"`
}

// Plan is the ordered set of actions consolidation produced for one window.
type Plan struct {
	Owner   string   `json:"owner"`
	Actions []Action `json:"actions"`
}

// Empty reports whether the plan carries no actions.
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}
