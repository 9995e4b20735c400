package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

func ollamaServer(t *testing.T, reply OllamaMessage, seen *OllamaChatRequest) *OllamaEngine {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(seen)) {
			return
		}
		json.NewEncoder(w).Encode(OllamaChatResponse{Model: "llama3.2", Message: reply, Done: true})
	}))
	t.Cleanup(ts.Close)

	cfg := DefaultOllamaConfig()
	cfg.BaseURL = ts.URL
	return NewOllamaEngine(cfg)
}

func TestOllamaToolCall(t *testing.T) {
	var seen OllamaChatRequest
	engine := ollamaServer(t, OllamaMessage{
		Role: "assistant",
		ToolCalls: []OllamaToolCall{{
			ID:       "call-2",
			Function: OllamaFunctionCall{Name: "get_exchange_rate", Arguments: map[string]any{"currency_to": "GBP"}},
		}},
	}, &seen)

	action, err := engine.ProposeNextAction(context.Background(), exchangeRequest())
	require.NoError(t, err)
	assert.Equal(t, &core.ToolCall{ID: "call-2", Name: "get_exchange_rate", Args: map[string]any{"currency_to": "GBP"}}, action)

	assert.Equal(t, "llama3.2", seen.Model)
	assert.False(t, seen.Stream)
	assert.Equal(t, 0.0, seen.Options["temperature"])

	roles := make([]string, 0, len(seen.Messages))
	for _, msg := range seen.Messages {
		roles = append(roles, msg.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant", "user", "assistant", "tool"}, roles)
	assert.Equal(t, "get_exchange_rate", seen.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, `{"error":"API request failed"}`, seen.Messages[7].Content)

	require.Len(t, seen.Tools, 2)
	assert.Equal(t, FinalAnswerTool, seen.Tools[1].Function.Name)
}

func TestOllamaReplies(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    core.Action
	}{
		{
			name:    "tool call as fenced json text",
			content: "```json\n{\"name\": \"get_exchange_rate\", \"parameters\": {\"currency_from\": \"USD\"}}\n```",
			want:    &core.ToolCall{Name: "get_exchange_rate", Args: map[string]any{"currency_from": "USD"}},
		},
		{
			name:    "final answer as text tool call",
			content: `{"name": "final_answer", "parameters": {"status": "completed", "message": "1 USD = 0.92 EUR"}}`,
			want:    &core.FinalAnswer{Status: a2a.TaskStateCompleted, Message: "1 USD = 0.92 EUR"},
		},
		{
			name:    "plain question",
			content: "Which currency do you want?",
			want:    &core.FinalAnswer{Status: a2a.TaskStateInputRequired, Message: "Which currency do you want?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen OllamaChatRequest
			engine := ollamaServer(t, OllamaMessage{Role: "assistant", Content: tt.content}, &seen)
			action, err := engine.ProposeNextAction(context.Background(), &core.ProposalRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, action)
		})
	}
}

func TestOllamaHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	cfg := DefaultOllamaConfig()
	cfg.BaseURL = ts.URL
	_, err := NewOllamaEngine(cfg).ProposeNextAction(context.Background(), &core.ProposalRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}
