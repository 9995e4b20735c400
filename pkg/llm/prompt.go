// Package llm provides reasoning engines backed by language models.
//
// Every engine sees the same conversation: the agent instruction as system
// prompt, the task history interleaved with earlier tool calls and their
// observations, and the registered tools plus a final_answer tool the model
// calls to end the turn. A reply without any tool call is treated as a
// question for the user (input-required).
package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// FinalAnswerTool is the tool name a model calls to end the turn.
const FinalAnswerTool = "final_answer"

// FallbackMessage is used when a model ends the turn without any text.
const FallbackMessage = "We are unable to process your request at the moment. Please try again."

const finishInstruction = "When the request is complete, when you need more information from the user, " +
	"or when an error prevents you from continuing, call the final_answer tool with status " +
	"completed, input_required or error and your reply to the user as message."

// FinalAnswerDeclaration describes the final_answer tool.
func FinalAnswerDeclaration() core.FunctionDeclaration {
	return core.FunctionDeclaration{
		Name:        FinalAnswerTool,
		Description: "Respond to the user and end the turn.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"enum":        []any{"completed", "input_required", "error"},
					"description": "input_required if the user must provide more information, error if the request failed, completed otherwise",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "The reply to the user",
				},
			},
			"required": []any{"status", "message"},
		},
	}
}

// SystemPrompt returns the system prompt for a proposal request.
func SystemPrompt(req *core.ProposalRequest) string {
	if strings.TrimSpace(req.Instruction) == "" {
		return finishInstruction
	}
	return req.Instruction + "\n\n" + finishInstruction
}

// Declarations returns the tool declarations offered to a model, the
// final_answer tool last.
func Declarations(req *core.ProposalRequest) []core.FunctionDeclaration {
	decls := make([]core.FunctionDeclaration, 0, len(req.Tools)+1)
	for _, tool := range req.Tools {
		decls = append(decls, tool.FunctionDeclaration)
	}
	return append(decls, FinalAnswerDeclaration())
}

// TurnRole is the author of a transcript entry.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
	TurnTool      TurnRole = "tool"
)

// Turn is one provider-neutral transcript entry. Assistant turns carry
// either Text or Call; tool turns carry Call and Result.
type Turn struct {
	Role   TurnRole
	Text   string
	Call   *core.ToolCall
	Result *core.Observation
}

// Transcript interleaves the history with the recorded steps. A step that
// ran when n messages existed follows message n-1.
func Transcript(req *core.ProposalRequest) []Turn {
	turns := make([]Turn, 0, len(req.History)+2*len(req.Steps))
	next := 0
	emitSteps := func(upTo int) {
		for next < len(req.Steps) && req.Steps[next].HistoryLen <= upTo {
			step := req.Steps[next]
			call := step.Call
			observation := step.Observation
			turns = append(turns,
				Turn{Role: TurnAssistant, Call: &call},
				Turn{Role: TurnTool, Call: &call, Result: &observation},
			)
			next++
		}
	}

	for i, msg := range req.History {
		emitSteps(i)
		role := TurnUser
		if msg.Role == a2a.RoleAgent {
			role = TurnAssistant
		}
		turns = append(turns, Turn{Role: role, Text: messageText(msg)})
	}
	emitSteps(math.MaxInt)
	return turns
}

// ObservationJSON renders an observation as the JSON text sent back to a model.
func ObservationJSON(observation *core.Observation) string {
	data, err := json.Marshal(observation.Content())
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// ActionFromCall turns a model tool call into an action.
func ActionFromCall(id, name string, args map[string]any) (core.Action, error) {
	if name != FinalAnswerTool {
		return &core.ToolCall{ID: id, Name: name, Args: args}, nil
	}

	status, _ := args["status"].(string)
	message, _ := args["message"].(string)
	state, err := core.ParseFinalStatus(status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		message = FallbackMessage
	}
	return &core.FinalAnswer{Status: state, Message: message}, nil
}

// ActionFromText handles a reply without tool calls. A JSON object with
// status and message is read as a final answer; any other text asks the
// user for input.
func ActionFromText(text string) core.Action {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var answer struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(trimmed), &answer); err == nil && answer.Status != "" {
			if action, err := ActionFromCall("", FinalAnswerTool, map[string]any{
				"status":  answer.Status,
				"message": answer.Message,
			}); err == nil {
				return action
			}
		}
	}

	if trimmed == "" {
		trimmed = FallbackMessage
	}
	return &core.FinalAnswer{Status: a2a.TaskStateInputRequired, Message: trimmed}
}

func messageText(msg a2a.Message) string {
	var parts []string
	for _, part := range msg.Parts {
		switch part.Kind {
		case a2a.PartKindText:
			parts = append(parts, part.Text)
		case a2a.PartKindData:
			data, err := json.Marshal(part.Data)
			if err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
