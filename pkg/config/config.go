// Package config loads the agent configuration from a YAML file, a .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a/executor"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a/server"
	"github.com/agent-protocol/a2a-delegation/pkg/agents"
	"github.com/agent-protocol/a2a-delegation/pkg/llm"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
	"github.com/agent-protocol/a2a-delegation/pkg/tools"
)

// AgentConfig configures one served agent.
type AgentConfig struct {
	server.Config `yaml:",inline"`
	// URL is the base URL published in the agent card. Empty derives it
	// from Host and Port.
	URL string `yaml:"url"`
}

// PublicURL returns the URL the agent advertises.
func (a AgentConfig) PublicURL() string {
	if a.URL != "" {
		return a.URL
	}
	host := a.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, a.Port)
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full process configuration.
type Config struct {
	Currency  AgentConfig `yaml:"currency"`
	Reporting AgentConfig `yaml:"reporting"`

	// RatesURL is the Frankfurter-compatible exchange-rate API.
	RatesURL string `yaml:"rates_url"`
	// ToolTimeout bounds each tool invocation.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	// DelegationTimeout bounds one nested call to the reporting agent.
	DelegationTimeout time.Duration `yaml:"delegation_timeout"`

	Orchestrator agents.OrchestratorConfig   `yaml:"orchestrator"`
	Executor     executor.Config             `yaml:"executor"`
	Store        tasks.Config                `yaml:"store"`
	LLM          llm.Config                  `yaml:"llm"`
	Tracing      observability.TracingConfig `yaml:"tracing"`
	Logging      LoggingConfig               `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Currency: AgentConfig{Config: server.Config{
			Host:            "0.0.0.0",
			Port:            5001,
			ShutdownTimeout: 10 * time.Second,
		}},
		Reporting: AgentConfig{Config: server.Config{
			Host:            "0.0.0.0",
			Port:            5002,
			ShutdownTimeout: 10 * time.Second,
		}},
		RatesURL:          tools.DefaultRatesURL,
		ToolTimeout:       30 * time.Second,
		DelegationTimeout: 60 * time.Second,
		Orchestrator:      agents.DefaultOrchestratorConfig(),
		Executor:          executor.DefaultConfig(),
		Store:             tasks.DefaultConfig(),
		LLM: llm.Config{
			Source: llm.SourceGoogle,
			Model:  llm.DefaultGeminiModel,
		},
		Tracing: observability.TracingConfig{
			Exporter:     "none",
			ServiceName:  "a2a-delegation",
			SamplingRate: 1,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A .env file in the working directory
// is loaded if present and never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("A2A_CURRENCY_HOST", &c.Currency.Host)
	env.int("A2A_CURRENCY_PORT", &c.Currency.Port)
	env.str("A2A_CURRENCY_URL", &c.Currency.URL)
	env.str("A2A_REPORTING_HOST", &c.Reporting.Host)
	env.int("A2A_REPORTING_PORT", &c.Reporting.Port)
	env.str("A2A_REPORTING_URL", &c.Reporting.URL)
	if origins, ok := lookup("A2A_ALLOW_ORIGINS"); ok && origins != "" {
		list := splitList(origins)
		c.Currency.AllowOrigins = list
		c.Reporting.AllowOrigins = list
	}

	env.str("A2A_RATES_URL", &c.RatesURL)
	env.duration("A2A_TOOL_TIMEOUT", &c.ToolTimeout)
	env.duration("A2A_DELEGATION_TIMEOUT", &c.DelegationTimeout)
	env.int("A2A_MAX_STEPS", &c.Orchestrator.MaxSteps)
	env.duration("A2A_ENGINE_TIMEOUT", &c.Orchestrator.EngineTimeout)
	env.bool("A2A_STRICT_ANSWERS", &c.Orchestrator.StrictAnswers)
	env.duration("A2A_TURN_TIMEOUT", &c.Executor.TurnTimeout)
	env.int("A2A_MAX_TASKS", &c.Store.MaxTasks)
	env.duration("A2A_TASK_TTL", &c.Store.TTL)

	env.str("A2A_LOG_LEVEL", &c.Logging.Level)
	env.str("A2A_LOG_FORMAT", &c.Logging.Format)
	env.str("A2A_TRACE_EXPORTER", &c.Tracing.Exporter)
	env.str("A2A_TRACE_ENDPOINT", &c.Tracing.Endpoint)

	// model_source, TOOL_LLM_NAME, TOOL_LLM_URL and API_KEY keep the names
	// the agents have always been deployed with. Any source other than
	// google or ollama is an OpenAI-compatible endpoint.
	if source, ok := lookup("model_source"); ok && source != "" {
		switch strings.ToLower(source) {
		case llm.SourceGoogle, llm.SourceOllama:
			c.LLM.Source = strings.ToLower(source)
		default:
			c.LLM.Source = llm.SourceOpenAI
		}
		if c.LLM.Source != llm.SourceGoogle && c.LLM.Model == llm.DefaultGeminiModel {
			c.LLM.Model = ""
		}
	}
	env.str("A2A_MODEL_SOURCE", &c.LLM.Source)
	env.str("TOOL_LLM_NAME", &c.LLM.Model)
	env.str("TOOL_LLM_URL", &c.LLM.BaseURL)

	switch c.LLM.Source {
	case llm.SourceGoogle:
		env.str("GOOGLE_API_KEY", &c.LLM.APIKey)
	case llm.SourceOpenAI:
		env.str("OPENAI_API_KEY", &c.LLM.APIKey)
		env.str("API_KEY", &c.LLM.APIKey)
	}

	return env.err
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	for _, a := range []struct {
		name string
		cfg  AgentConfig
	}{{"currency", c.Currency}, {"reporting", c.Reporting}} {
		if a.cfg.Port <= 0 || a.cfg.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s.port must be between 1 and 65535, got %d", a.name, a.cfg.Port))
		}
	}
	if c.Currency.Port == c.Reporting.Port && c.Currency.Host == c.Reporting.Host {
		errs = append(errs, fmt.Errorf("currency and reporting agents cannot share %s:%d", c.Currency.Host, c.Currency.Port))
	}
	if c.Orchestrator.MaxSteps <= 0 {
		errs = append(errs, errors.New("orchestrator.max_steps must be positive"))
	}
	if c.Orchestrator.RepeatLimit < 2 {
		errs = append(errs, errors.New("orchestrator.repeat_limit must be at least 2"))
	}
	if c.Executor.TurnTimeout <= 0 {
		errs = append(errs, errors.New("executor.turn_timeout must be positive"))
	}
	switch c.LLM.Source {
	case llm.SourceGoogle, llm.SourceOllama:
	case llm.SourceOpenAI:
		if c.LLM.Model == "" {
			errs = append(errs, errors.New("llm.model (TOOL_LLM_NAME) is required for openai-compatible engines"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.source must be google, openai or ollama, got %q", c.LLM.Source))
	}
	return errors.Join(errs...)
}

// envReader applies typed environment overrides and keeps the first error.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid boolean %q", key, v))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid duration %q", key, v))
		return
	}
	*dst = d
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
