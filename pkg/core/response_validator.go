package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// ResponseValidator checks actions proposed by reasoning engines before the
// orchestrator acts on them.
type ResponseValidator struct {
	strictMode bool
}

// NewResponseValidator creates a new response validator. In strict mode a
// final answer must carry a usable message.
func NewResponseValidator(strictMode bool) *ResponseValidator {
	return &ResponseValidator{
		strictMode: strictMode,
	}
}

// ValidateAction validates and normalises an action in place.
func (v *ResponseValidator) ValidateAction(action Action) error {
	switch a := action.(type) {
	case *ToolCall:
		return v.validateToolCall(a)
	case *FinalAnswer:
		return v.validateFinalAnswer(a)
	case nil:
		return fmt.Errorf("action cannot be nil")
	default:
		return fmt.Errorf("unknown action type %T", action)
	}
}

// validateToolCall validates tool call structure.
func (v *ResponseValidator) validateToolCall(tc *ToolCall) error {
	if tc == nil {
		return fmt.Errorf("tool call cannot be nil")
	}
	if strings.TrimSpace(tc.Name) == "" {
		return fmt.Errorf("tool call name is required")
	}

	if tc.Args == nil {
		tc.Args = make(map[string]any)
	}

	if _, err := json.Marshal(tc.Args); err != nil {
		return fmt.Errorf("tool call args must be JSON-serializable: %w", err)
	}
	return nil
}

// validateFinalAnswer checks the status classification and message.
func (v *ResponseValidator) validateFinalAnswer(fa *FinalAnswer) error {
	if fa == nil {
		return fmt.Errorf("final answer cannot be nil")
	}

	switch fa.Status {
	case a2a.TaskStateCompleted, a2a.TaskStateInputRequired, a2a.TaskStateError:
	default:
		return fmt.Errorf("invalid final answer status: %q", fa.Status)
	}

	fa.Message = strings.TrimSpace(fa.Message)
	if v.strictMode && !isValidText(fa.Message) {
		return fmt.Errorf("final answer message is empty or malformed")
	}
	return nil
}

// ParseFinalStatus maps the status strings engines emit onto task states.
func ParseFinalStatus(status string) (a2a.TaskState, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "complete", "done":
		return a2a.TaskStateCompleted, nil
	case "input_required", "input-required", "needs_input":
		return a2a.TaskStateInputRequired, nil
	case "error", "failed":
		return a2a.TaskStateError, nil
	default:
		return "", fmt.Errorf("unknown final status %q", status)
	}
}

// isValidText reports whether text is usable as a caller-facing message and
// not a malformed JSON fragment.
func isValidText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	malformedPatterns := []string{
		`"},"`,
		`}},`,
		`"]`,
		`"parameters"`,
	}

	for _, pattern := range malformedPatterns {
		if strings.Contains(text, pattern) && len(text) < 50 {
			return false
		}
	}

	trimmed := strings.Trim(text, `"{}[],:`)
	return len(trimmed) > 0
}
