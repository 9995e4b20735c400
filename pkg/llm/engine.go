package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// Engine sources.
const (
	SourceGoogle = "google"
	SourceOpenAI = "openai"
	SourceOllama = "ollama"
)

// Config selects and configures a reasoning engine.
type Config struct {
	// Source is google, openai (any OpenAI-compatible endpoint) or ollama.
	Source      string        `yaml:"source"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"-"`
	Temperature *float32      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// New creates the engine described by cfg.
func New(ctx context.Context, cfg Config) (core.ReasoningEngine, error) {
	switch cfg.Source {
	case "", SourceGoogle:
		return NewGeminiEngine(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	case SourceOpenAI:
		var temperature *float64
		if cfg.Temperature != nil {
			t := float64(*cfg.Temperature)
			temperature = &t
		}
		return NewOpenAIEngine(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: temperature,
		})
	case SourceOllama:
		ollamaCfg := DefaultOllamaConfig()
		if cfg.BaseURL != "" {
			ollamaCfg.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			ollamaCfg.Model = cfg.Model
		}
		if cfg.Temperature != nil {
			ollamaCfg.Temperature = cfg.Temperature
		}
		if cfg.Timeout > 0 {
			ollamaCfg.Timeout = cfg.Timeout
		}
		return NewOllamaEngine(ollamaCfg), nil
	default:
		return nil, fmt.Errorf("unknown model source: %q", cfg.Source)
	}
}
