// Package conversation defines the window of role-tagged turns submitted to
// one pipeline run.
package conversation

import (
	"fmt"
	"strings"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TranscriptMaxChars caps the rendered transcript passed to the reasoner.
// Oversized windows are truncated, not failed.
const TranscriptMaxChars = 30000

// Turn is a single role-tagged message in a conversation window.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTurn creates a turn with the given role and content.
func NewTurn(role, content string) Turn {
	return Turn{Role: role, Content: content}
}

// Validate checks that the turn carries a known role.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleAssistant:
		return nil
	}
	return fmt.Errorf("unknown conversation role: %q", t.Role)
}

// Window is the ordered sequence of turns for one pipeline run.
type Window []Turn

// Validate checks every turn in the window. An empty window is valid.
func (w Window) Validate() error {
	for i, t := range w {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}

// Transcript renders the window as "[role] content" lines for prompt
// construction, truncated to TranscriptMaxChars.
func (w Window) Transcript() string {
	var b strings.Builder
	for _, t := range w {
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Content)
	}
	s := b.String()
	if len(s) > TranscriptMaxChars {
		s = s[:TranscriptMaxChars]
	}
	return s
}
