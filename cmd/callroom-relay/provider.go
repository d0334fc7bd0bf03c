package main

import (
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant/anthropic"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant/ollama"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/config"
)

type aiBackend struct {
	provider assistant.Provider
	model    string
	// local providers need no credential.
	local bool
}

// newProvider picks the completion backend. An Anthropic backend without a
// usable key yields no provider; the bridge then runs disabled.
func newProvider(cfg config.AIConfig) aiBackend {
	switch cfg.Provider {
	case config.AIProviderOllama:
		model := cfg.Model
		if model == "" {
			model = cfg.OllamaModel
		}
		c := ollama.New(ollama.Config{
			Endpoint:  cfg.OllamaEndpoint,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
		})
		return aiBackend{provider: c, model: c.Model(), local: true}
	default:
		if !assistant.CredentialConfigured(cfg.APIKey) {
			return aiBackend{model: anthropic.DefaultModel}
		}
		c := anthropic.New(anthropic.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: 1,
		})
		return aiBackend{provider: c, model: c.Model()}
	}
}
