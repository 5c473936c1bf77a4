package testutils

import (
	"github.com/engramlabs/engram/pkg/conversation"
)

// NewTestTurn creates a simple conversation turn for testing
func NewTestTurn(role, text string) conversation.Turn {
	return conversation.Turn{
		Role:    role,
		Content: text,
	}
}

// NewTestWindow creates a one-exchange window from a user message and the
// assistant's reply.
func NewTestWindow(userText, assistantText string) conversation.Window {
	return conversation.Window{
		NewTestTurn(conversation.RoleUser, userText),
		NewTestTurn(conversation.RoleAssistant, assistantText),
	}
}
