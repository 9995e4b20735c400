// Package core defines the contracts shared by the orchestrator, its tools
// and its reasoning engines.
package core

import (
	"context"
)

// ReasoningEngine proposes the next action for a task. Implementations are
// non-deterministic and may be slow; callers bound every call with a timeout.
type ReasoningEngine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// ProposeNextAction returns a *ToolCall or a *FinalAnswer.
	ProposeNextAction(ctx context.Context, req *ProposalRequest) (Action, error)

	// Close releases any resources held by the engine.
	Close() error
}

// BaseTool defines the interface that all tools must implement.
type BaseTool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a description of the tool's purpose.
	Description() string

	// Kind returns the class of work the tool performs.
	Kind() ToolKind

	// GetDeclaration returns the function declaration for engine integration.
	GetDeclaration() *FunctionDeclaration

	// RunAsync executes the tool. A returned error becomes a failed
	// observation; it never aborts the task.
	RunAsync(ctx context.Context, args map[string]any, toolCtx *ToolContext) (any, error)
}
