package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// ErrUnknownTool is reported when an engine names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry maps tool names to tools. Dispatch is by exact name only.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]core.BaseTool
	timeout time.Duration
}

// NewRegistry creates a registry. timeout bounds each invocation; zero means
// only the caller's context applies.
func NewRegistry(timeout time.Duration, tools ...core.BaseTool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]core.BaseTool),
		timeout: timeout,
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool core.BaseTool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	switch tool.Kind() {
	case core.ToolKindLookup, core.ToolKindDelegate, core.ToolKindCompute:
	default:
		return fmt.Errorf("tool %s has unknown kind %q", tool.Name(), tool.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (core.BaseTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Descriptors returns the engine-facing description of every tool, sorted by name.
func (r *Registry) Descriptors() []core.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]core.ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		decl := tool.GetDeclaration()
		if decl == nil {
			continue
		}
		descriptors = append(descriptors, core.ToolDescriptor{
			FunctionDeclaration: *decl,
			Kind:                tool.Kind(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}

// Invoke runs the named tool and folds any failure into the observation.
// It never returns an error: unknown tools, argument errors, timeouts and
// panics all become failed observations.
func (r *Registry) Invoke(ctx context.Context, call *core.ToolCall, toolCtx *core.ToolContext) (obs core.Observation) {
	tool, ok := r.Lookup(call.Name)
	if !ok {
		return core.Observation{Error: fmt.Sprintf("%v: %s", ErrUnknownTool, call.Name)}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool panicked", "tool", call.Name, "panic", rec)
			obs = core.Observation{Error: fmt.Sprintf("tool %s failed: %v", call.Name, rec)}
		}
	}()

	result, err := tool.RunAsync(core.WithToolContext(ctx, toolCtx), call.Args, toolCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("tool %s timed out: %w", call.Name, err)
		}
		return core.Observation{Error: err.Error()}
	}
	return core.Observation{Output: result}
}
