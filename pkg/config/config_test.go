package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/a2a-delegation/pkg/llm"
)

func mapLookup(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5001, cfg.Currency.Port)
	assert.Equal(t, 5002, cfg.Reporting.Port)
	assert.Equal(t, "http://localhost:5001", cfg.Currency.PublicURL())
	assert.Equal(t, llm.SourceGoogle, cfg.LLM.Source)
	assert.Equal(t, 10, cfg.Orchestrator.MaxSteps)
	assert.Equal(t, 5*time.Minute, cfg.Executor.TurnTimeout)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
}

func TestPublicURL(t *testing.T) {
	a := AgentConfig{URL: "https://reporting.example.com"}
	assert.Equal(t, "https://reporting.example.com", a.PublicURL())

	a = Default().Reporting
	a.Host = "10.0.0.7"
	assert.Equal(t, "http://10.0.0.7:5002", a.PublicURL())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
currency:
  port: 6001
  allow_origins: ["http://dashboard.local"]
reporting:
  port: 6002
  url: http://reporting:6002
tool_timeout: 5s
orchestrator:
  max_steps: 4
store:
  max_tasks: 50
  ttl: 10m
llm:
  source: ollama
  model: llama3.2
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Currency.Port)
	assert.Equal(t, "0.0.0.0", cfg.Currency.Host, "unset fields keep their defaults")
	assert.Equal(t, []string{"http://dashboard.local"}, cfg.Currency.AllowOrigins)
	assert.Equal(t, "http://reporting:6002", cfg.Reporting.PublicURL())
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 4, cfg.Orchestrator.MaxSteps)
	assert.Equal(t, 3, cfg.Orchestrator.RepeatLimit)
	assert.Equal(t, 50, cfg.Store.MaxTasks)
	assert.Equal(t, 10*time.Minute, cfg.Store.TTL)
	assert.Equal(t, llm.SourceOllama, cfg.LLM.Source)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("currency: [1, 2"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parsing config")

	t.Setenv("A2A_CURRENCY_PORT", "not-a-port")
	_, err = Load("")
	assert.ErrorContains(t, err, "A2A_CURRENCY_PORT")
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("currency:\n  port: 6001\n"), 0o600))

	t.Setenv("A2A_CURRENCY_PORT", "7001")
	t.Setenv("A2A_TURN_TIMEOUT", "90s")
	t.Setenv("model_source", "ollama")
	t.Setenv("TOOL_LLM_NAME", "qwen2.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Currency.Port)
	assert.Equal(t, 90*time.Second, cfg.Executor.TurnTimeout)
	assert.Equal(t, llm.SourceOllama, cfg.LLM.Source)
	assert.Equal(t, "qwen2.5", cfg.LLM.Model)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "allow origins apply to both agents",
			env:  map[string]string{"A2A_ALLOW_ORIGINS": "http://a.local, ,http://b.local"},
			check: func(t *testing.T, cfg *Config) {
				want := []string{"http://a.local", "http://b.local"}
				assert.Equal(t, want, cfg.Currency.AllowOrigins)
				assert.Equal(t, want, cfg.Reporting.AllowOrigins)
			},
		},
		{
			name: "any other model source is openai compatible",
			env: map[string]string{
				"model_source":  "vllm",
				"TOOL_LLM_NAME": "mistral",
				"TOOL_LLM_URL":  "http://vllm:8000/v1",
				"API_KEY":       "secret",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, llm.SourceOpenAI, cfg.LLM.Source)
				assert.Equal(t, "mistral", cfg.LLM.Model)
				assert.Equal(t, "http://vllm:8000/v1", cfg.LLM.BaseURL)
				assert.Equal(t, "secret", cfg.LLM.APIKey)
			},
		},
		{
			name: "switching source drops the gemini default model",
			env:  map[string]string{"model_source": "OLLAMA"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, llm.SourceOllama, cfg.LLM.Source)
				assert.Empty(t, cfg.LLM.Model)
			},
		},
		{
			name: "google key only read for google",
			env:  map[string]string{"GOOGLE_API_KEY": "g-key", "OPENAI_API_KEY": "o-key"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "g-key", cfg.LLM.APIKey)
			},
		},
		{
			name: "empty values are ignored",
			env:  map[string]string{"A2A_REPORTING_PORT": "", "A2A_LOG_LEVEL": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5002, cfg.Reporting.Port)
				assert.Equal(t, "info", cfg.Logging.Level)
			},
		},
		{
			name: "timeouts and bounds",
			env: map[string]string{
				"A2A_TOOL_TIMEOUT":       "2s",
				"A2A_DELEGATION_TIMEOUT": "15s",
				"A2A_ENGINE_TIMEOUT":     "3s",
				"A2A_MAX_STEPS":          "6",
				"A2A_MAX_TASKS":          "12",
				"A2A_TASK_TTL":           "1m",
				"A2A_STRICT_ANSWERS":     "true",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2*time.Second, cfg.ToolTimeout)
				assert.Equal(t, 15*time.Second, cfg.DelegationTimeout)
				assert.Equal(t, 3*time.Second, cfg.Orchestrator.EngineTimeout)
				assert.Equal(t, 6, cfg.Orchestrator.MaxSteps)
				assert.Equal(t, 12, cfg.Store.MaxTasks)
				assert.Equal(t, time.Minute, cfg.Store.TTL)
				assert.True(t, cfg.Orchestrator.StrictAnswers)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.applyEnv(mapLookup(tt.env)))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvKeepsFirstError(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"A2A_CURRENCY_PORT": "x",
		"A2A_TOOL_TIMEOUT":  "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2A_CURRENCY_PORT")
	assert.NotContains(t, err.Error(), "A2A_TOOL_TIMEOUT")

	err = Default().applyEnv(mapLookup(map[string]string{"A2A_STRICT_ANSWERS": "sometimes"}))
	assert.EqualError(t, err, `A2A_STRICT_ANSWERS: invalid boolean "sometimes"`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		want   string
	}{
		{
			name:   "port out of range",
			modify: func(cfg *Config) { cfg.Currency.Port = 70000 },
			want:   "currency.port must be between 1 and 65535",
		},
		{
			name:   "shared address",
			modify: func(cfg *Config) { cfg.Reporting.Port = cfg.Currency.Port },
			want:   "cannot share 0.0.0.0:5001",
		},
		{
			name:   "no steps",
			modify: func(cfg *Config) { cfg.Orchestrator.MaxSteps = 0 },
			want:   "max_steps must be positive",
		},
		{
			name:   "repeat limit",
			modify: func(cfg *Config) { cfg.Orchestrator.RepeatLimit = 1 },
			want:   "repeat_limit must be at least 2",
		},
		{
			name:   "turn timeout",
			modify: func(cfg *Config) { cfg.Executor.TurnTimeout = 0 },
			want:   "turn_timeout must be positive",
		},
		{
			name:   "openai without model",
			modify: func(cfg *Config) { cfg.LLM = llm.Config{Source: llm.SourceOpenAI} },
			want:   "llm.model (TOOL_LLM_NAME) is required",
		},
		{
			name:   "unknown source",
			modify: func(cfg *Config) { cfg.LLM.Source = "anthropic" },
			want:   `got "anthropic"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
