package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// DelegationError is a failed nested call to a collaborating agent: the card
// could not be resolved, the call failed, or the remote task did not complete.
type DelegationError struct {
	Agent string
	State a2a.TaskState
	Err   error
}

func (e *DelegationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delegation failed: %s: %v", e.Agent, e.Err)
	}
	return fmt.Sprintf("delegation failed: %s returned status %s", e.Agent, e.State)
}

func (e *DelegationError) Unwrap() error {
	return e.Err
}

// DelegateConfig configures a delegation tool.
type DelegateConfig struct {
	// Name is the tool name the engine calls.
	Name string
	// Description is shown to the engine.
	Description string
	// AgentURL is the collaborating agent's base URL.
	AgentURL string
	// Timeout bounds the whole nested resolve and send cycle.
	Timeout time.Duration
	// Client configures the nested A2A client.
	Client *a2a.ClientConfig
}

// ConversionArgs are the arguments of call_reporting_agent.
type ConversionArgs struct {
	ConversionResult map[string]any `json:"conversion_result" jsonschema:"required,description=The currency conversion result data containing from and to and rate and raw data"`
	SessionID        string         `json:"session_id,omitempty" jsonschema:"description=Session identifier for the request"`
}

// ReportResult is what a successful delegation returns to the engine.
type ReportResult struct {
	Status    string `json:"status"`
	Report    string `json:"report"`
	Summary   string `json:"summary"`
	SessionID string `json:"session_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// Delegator performs nested calls to one collaborating agent.
type Delegator struct {
	cfg      DelegateConfig
	resolver a2a.CardResolver
}

// NewDelegator creates a delegator. The resolver should cache cards.
func NewDelegator(cfg DelegateConfig, resolver a2a.CardResolver) *Delegator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = a2a.DefaultClientConfig()
	}
	return &Delegator{cfg: cfg, resolver: resolver}
}

// Delegate resolves the agent card and sends text as one message/send. Any
// failure, including a remote task that does not complete, is a
// *DelegationError.
func (d *Delegator) Delegate(ctx context.Context, text, sessionID string) (*a2a.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	card, err := d.resolver.Resolve(ctx, d.cfg.AgentURL)
	if err != nil {
		return nil, &DelegationError{Agent: d.cfg.AgentURL, Err: err}
	}

	client, err := a2a.NewClient(card, d.cfg.Client)
	if err != nil {
		return nil, &DelegationError{Agent: card.Name, Err: err}
	}
	defer client.Close()

	msg := a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(text))
	task, err := client.SendMessage(ctx, &a2a.MessageSendParams{
		Message:   msg,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, &DelegationError{Agent: card.Name, Err: err}
	}
	if task.Status.State != a2a.TaskStateCompleted {
		return task, &DelegationError{Agent: card.Name, State: task.Status.State}
	}
	return task, nil
}

// NewReportingDelegateTool returns the call_reporting_agent delegation tool.
func NewReportingDelegateTool(d *Delegator) *FunctionTool[ConversionArgs] {
	name := d.cfg.Name
	if name == "" {
		name = "call_reporting_agent"
	}
	description := d.cfg.Description
	if description == "" {
		description = "Call the Reporting Agent to generate a report for a conversion result using A2A protocol. Returns the report or error information."
	}

	return MustFunctionTool(name, description, core.ToolKindDelegate,
		func(ctx context.Context, args ConversionArgs, toolCtx *core.ToolContext) (any, error) {
			if len(args.ConversionResult) == 0 {
				return nil, fmt.Errorf("conversion_result is required")
			}
			payload, err := json.MarshalIndent(args.ConversionResult, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("invalid conversion_result: %w", err)
			}

			sessionID := args.SessionID
			if sessionID == "" && toolCtx != nil {
				sessionID = toolCtx.ContextID
			}

			text := "Generate a comprehensive report for this currency conversion: " + string(payload)
			task, err := d.Delegate(ctx, text, sessionID)
			if err != nil {
				toolLogger(toolCtx).Warn("Delegation failed", "agent", d.cfg.AgentURL, "error", err)
				return nil, err
			}

			report := task.ArtifactText()
			if report == "" {
				report = "Report generated but no content available"
			}
			return &ReportResult{
				Status:    string(a2a.TaskStateCompleted),
				Report:    report,
				Summary:   fmt.Sprintf("Generated report for %v to %v conversion", valueOr(args.ConversionResult, "from"), valueOr(args.ConversionResult, "to")),
				SessionID: sessionID,
				TaskID:    task.ID,
			}, nil
		})
}

func valueOr(m map[string]any, key string) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return "N/A"
}
