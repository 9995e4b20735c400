package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini engine.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature *float32
}

// GeminiEngine is a reasoning engine backed by the Gemini API.
type GeminiEngine struct {
	client *genai.Client
	model  string
	config GeminiConfig
}

var _ core.ReasoningEngine = (*GeminiEngine)(nil)

// NewGeminiEngine creates a Gemini engine.
func NewGeminiEngine(ctx context.Context, cfg GeminiConfig) (*GeminiEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini engine requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEngine{client: client, model: model, config: cfg}, nil
}

// Name returns the engine name.
func (e *GeminiEngine) Name() string {
	return "gemini"
}

// ProposeNextAction asks the model for the next action.
func (e *GeminiEngine) ProposeNextAction(ctx context.Context, req *core.ProposalRequest) (core.Action, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt(req)}}},
		Tools:             geminiTools(Declarations(req)),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature: e.config.Temperature,
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, geminiContents(Transcript(req)), config)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("request blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			return ActionFromCall(part.FunctionCall.ID, part.FunctionCall.Name, part.FunctionCall.Args)
		}
		text.WriteString(part.Text)
	}
	return ActionFromText(text.String()), nil
}

// Close releases resources held by the engine.
func (e *GeminiEngine) Close() error {
	return nil
}

func geminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch {
		case turn.Role == TurnTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       turn.Call.ID,
						Name:     turn.Call.Name,
						Response: turn.Result.Content(),
					},
				}},
			})
		case turn.Call != nil:
			contents = append(contents, &genai.Content{
				Role: "model",
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{
						ID:   turn.Call.ID,
						Name: turn.Call.Name,
						Args: turn.Call.Args,
					},
				}},
			})
		case turn.Role == TurnAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: turn.Text}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: turn.Text}}})
		}
	}
	return contents
}

func geminiTools(decls []core.FunctionDeclaration) []*genai.Tool {
	funcs := make([]*genai.FunctionDeclaration, len(decls))
	for i, decl := range decls {
		funcs[i] = &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  geminiSchema(decl.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: funcs}}
}

// geminiSchema converts a JSON schema object into the genai schema subset.
func geminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{}
	switch schema["type"] {
	case "string":
		result.Type = genai.TypeString
	case "number":
		result.Type = genai.TypeNumber
	case "integer":
		result.Type = genai.TypeInteger
	case "boolean":
		result.Type = genai.TypeBoolean
	case "array":
		result.Type = genai.TypeArray
	case "object":
		result.Type = genai.TypeObject
	}

	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if values, ok := schema["enum"].([]any); ok {
		for _, v := range values {
			if s, ok := v.(string); ok {
				result.Enum = append(result.Enum, s)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				result.Properties[name] = geminiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = geminiSchema(items)
	}
	return result
}
