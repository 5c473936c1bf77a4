// Package reasoningutils is the reasoning utility package
package reasoningutils

import (
	"fmt"
	"time"

	"github.com/engramlabs/engram/pkg/reasoning"
	"github.com/engramlabs/engram/pkg/reasoning/anthropic"
	"github.com/engramlabs/engram/pkg/reasoning/ollama"
	"github.com/engramlabs/engram/pkg/reasoning/openai"
)

type NewReasonerOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string

	// Timeout bounds a single completion call for providers that support it.
	Timeout time.Duration
}

func NewReasoner(o *NewReasonerOpts) (reasoning.Reasoner, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewReasoner(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	case "openai":
		return openai.NewReasoner(openai.Config{
			APIKey:  o.APIKey,
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "anthropic":
		return anthropic.NewReasoner(anthropic.Config{
			APIKey:  o.APIKey,
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported reasoning provider: %s", o.ProviderType)
	}
}
