// Package llmutils builds chat completion clients from configuration.
package llmutils

import (
	"fmt"
	"time"

	"github.com/papercomputeco/threads/pkg/llm"
	"github.com/papercomputeco/threads/pkg/llm/ollama"
	"github.com/papercomputeco/threads/pkg/llm/openai"
)

type NewClientOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Timeout      time.Duration
}

func NewClient(o *NewClientOpts) (llm.Client, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: o.TargetURL, Model: o.Model, Timeout: o.Timeout})
	case "openai":
		return openai.New(openai.Config{BaseURL: o.TargetURL, APIKey: o.APIKey, Model: o.Model, Timeout: o.Timeout})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", o.ProviderType)
	}
}
