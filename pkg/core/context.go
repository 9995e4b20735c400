package core

import (
	"context"
	"log/slog"
)

// ToolContext carries the identity of the task a tool runs for.
type ToolContext struct {
	TaskID    string
	ContextID string
	CallID    string
	Logger    *slog.Logger
}

// NewToolContext creates a tool context scoped to one tool call.
func NewToolContext(taskID, contextID, callID string) *ToolContext {
	return &ToolContext{
		TaskID:    taskID,
		ContextID: contextID,
		CallID:    callID,
		Logger:    slog.Default().With("task_id", taskID, "context_id", contextID, "call_id", callID),
	}
}

type toolContextKey struct{}

// WithToolContext stores tc in ctx so nested calls can recover the caller's
// task identity.
func WithToolContext(ctx context.Context, tc *ToolContext) context.Context {
	return context.WithValue(ctx, toolContextKey{}, tc)
}

// ToolContextFrom returns the tool context stored in ctx, if any.
func ToolContextFrom(ctx context.Context) (*ToolContext, bool) {
	tc, ok := ctx.Value(toolContextKey{}).(*ToolContext)
	return tc, ok
}
