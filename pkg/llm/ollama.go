package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// OllamaEngine is a reasoning engine backed by a local Ollama server.
type OllamaEngine struct {
	baseURL    string
	httpClient *http.Client
	model      string
	config     *OllamaConfig
}

var _ core.ReasoningEngine = (*OllamaEngine)(nil)

// OllamaConfig contains configuration options for Ollama.
type OllamaConfig struct {
	BaseURL     string        `json:"base_url"`
	Model       string        `json:"model"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultOllamaConfig returns a default configuration for Ollama.
func DefaultOllamaConfig() *OllamaConfig {
	temperature := float32(0)
	return &OllamaConfig{
		BaseURL:     "http://localhost:11434",
		Model:       "llama3.2",
		Temperature: &temperature,
		Timeout:     60 * time.Second,
	}
}

// NewOllamaEngine creates an Ollama engine with the given configuration.
func NewOllamaEngine(config *OllamaConfig) *OllamaEngine {
	if config == nil {
		config = DefaultOllamaConfig()
	}

	return &OllamaEngine{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		model:   config.Model,
		config:  config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the engine name.
func (e *OllamaEngine) Name() string {
	return "ollama"
}

// ProposeNextAction asks the model for the next action.
func (e *OllamaEngine) ProposeNextAction(ctx context.Context, req *core.ProposalRequest) (core.Action, error) {
	ollamaReq := e.buildRequest(req)

	resp, err := e.makeHTTPRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ollamaResp OllamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if calls := ollamaResp.Message.ToolCalls; len(calls) > 0 {
		return ActionFromCall(calls[0].ID, calls[0].Function.Name, calls[0].Function.Arguments)
	}
	// Smaller models often answer with the tool call as JSON text.
	if call, ok := parseTextToolCall(ollamaResp.Message.Content); ok {
		return ActionFromCall("", call.Name, call.Parameters)
	}
	return ActionFromText(ollamaResp.Message.Content), nil
}

// Close releases resources (no-op for HTTP-based engines).
func (e *OllamaEngine) Close() error {
	return nil
}

// buildRequest converts a proposal request to the Ollama chat format.
func (e *OllamaEngine) buildRequest(req *core.ProposalRequest) *OllamaChatRequest {
	ollamaReq := &OllamaChatRequest{
		Model:    e.model,
		Messages: []OllamaMessage{{Role: "system", Content: SystemPrompt(req)}},
		Stream:   false,
		Options:  make(map[string]any),
	}
	if e.config.Temperature != nil {
		ollamaReq.Options["temperature"] = *e.config.Temperature
	}
	if e.config.TopP != nil {
		ollamaReq.Options["top_p"] = *e.config.TopP
	}

	for _, turn := range Transcript(req) {
		switch {
		case turn.Role == TurnTool:
			ollamaReq.Messages = append(ollamaReq.Messages, OllamaMessage{
				Role:    "tool",
				Content: ObservationJSON(turn.Result),
			})
		case turn.Call != nil:
			ollamaReq.Messages = append(ollamaReq.Messages, OllamaMessage{
				Role: "assistant",
				ToolCalls: []OllamaToolCall{{
					ID: turn.Call.ID,
					Function: OllamaFunctionCall{
						Name:      turn.Call.Name,
						Arguments: turn.Call.Args,
					},
				}},
			})
		case turn.Role == TurnAssistant:
			ollamaReq.Messages = append(ollamaReq.Messages, OllamaMessage{Role: "assistant", Content: turn.Text})
		default:
			ollamaReq.Messages = append(ollamaReq.Messages, OllamaMessage{Role: "user", Content: turn.Text})
		}
	}

	for _, decl := range Declarations(req) {
		ollamaReq.Tools = append(ollamaReq.Tools, OllamaTool{
			Type: "function",
			Function: OllamaFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  decl.Parameters,
			},
		})
	}
	return ollamaReq
}

// makeHTTPRequest makes an HTTP request to the Ollama API.
func (e *OllamaEngine) makeHTTPRequest(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

type textToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// parseTextToolCall extracts {"name": ..., "parameters": {...}} from model
// text, with or without a ```json fence.
func parseTextToolCall(content string) (textToolCall, bool) {
	text := strings.TrimSpace(content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return textToolCall{}, false
	}

	var call textToolCall
	if err := json.Unmarshal([]byte(text), &call); err != nil || call.Name == "" {
		return textToolCall{}, false
	}
	if call.Parameters == nil {
		call.Parameters = map[string]any{}
	}
	return call, true
}

// Ollama API types

// OllamaChatRequest represents a request to the Ollama chat API.
type OllamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []OllamaMessage `json:"messages"`
	Tools    []OllamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

// OllamaMessage represents a message in the Ollama format.
type OllamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []OllamaToolCall `json:"tool_calls,omitempty"`
}

// OllamaTool represents a tool in the Ollama format.
type OllamaTool struct {
	Type     string         `json:"type"`
	Function OllamaFunction `json:"function"`
}

// OllamaFunction represents a function definition in Ollama format.
type OllamaFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

// OllamaToolCall represents a tool call in Ollama format.
type OllamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Function OllamaFunctionCall `json:"function"`
}

// OllamaFunctionCall represents a function call in Ollama format.
type OllamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// OllamaChatResponse represents a response from the Ollama chat API.
type OllamaChatResponse struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   OllamaMessage `json:"message"`
	Done      bool          `json:"done"`
}
