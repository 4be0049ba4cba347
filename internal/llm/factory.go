package llm

import (
	"fmt"

	"github.com/rahul/archcopilot/pkg/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// FromConfig builds the client for a configured provider. The credential is
// resolved from the config or the environment.
func FromConfig(name string, p config.ProviderConfig) (Client, error) {
	switch name {
	case "openai", "openrouter":
		baseURL := p.BaseURL
		if baseURL == "" && name == "openrouter" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIClient(name, p.ResolveAPIKey(name), p.Model, baseURL, p.Temperature, p.MaxTokens)
	case "anthropic":
		return NewAnthropicClient(p.ResolveAPIKey(name), p.Model, p.BaseURL, p.Temperature, p.MaxTokens), nil
	case "fixture":
		return NewFixtureClient(), nil
	}
	return nil, fmt.Errorf("provider %s not implemented", name)
}
