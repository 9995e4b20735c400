package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// OpenAIConfig configures an OpenAI-compatible engine.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible endpoint. Empty uses OpenAI.
	BaseURL     string
	Model       string
	Temperature *float64
}

// OpenAIEngine is a reasoning engine backed by an OpenAI-compatible
// chat completions API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	config OpenAIConfig
}

var _ core.ReasoningEngine = (*OpenAIEngine)(nil)

// NewOpenAIEngine creates an OpenAI-compatible engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai engine requires a model name")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "EMPTY"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIEngine{client: &client, model: cfg.Model, config: cfg}, nil
}

// Name returns the engine name.
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// ProposeNextAction asks the model for the next action.
func (e *OpenAIEngine) ProposeNextAction(ctx context.Context, req *core.ProposalRequest) (core.Action, error) {
	messages, err := openAIMessages(SystemPrompt(req), Transcript(req))
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: messages,
		Tools:    openAITools(Declarations(req)),
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("required"),
		},
	}
	if e.config.Temperature != nil {
		params.Temperature = openai.Float(*e.config.Temperature)
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("invalid arguments for %s: %w", call.Function.Name, err)
			}
		}
		return ActionFromCall(call.ID, call.Function.Name, args)
	}
	return ActionFromText(msg.Content), nil
}

// Close releases resources held by the engine.
func (e *OpenAIEngine) Close() error {
	return nil
}

func openAIMessages(system string, turns []Turn) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(system))

	for _, turn := range turns {
		switch {
		case turn.Role == TurnTool:
			messages = append(messages, openai.ToolMessage(ObservationJSON(turn.Result), turn.Call.ID))
		case turn.Call != nil:
			args, err := json.Marshal(turn.Call.Args)
			if err != nil {
				return nil, fmt.Errorf("encoding arguments of %s: %w", turn.Call.Name, err)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID: turn.Call.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      turn.Call.Name,
							Arguments: string(args),
						},
					}},
				},
			})
		case turn.Role == TurnAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	return messages, nil
}

func openAITools(decls []core.FunctionDeclaration) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(decls))
	for i, decl := range decls {
		tools[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        decl.Name,
				Description: openai.String(decl.Description),
				Parameters:  shared.FunctionParameters(decl.Parameters),
			},
		}
	}
	return tools
}
