package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

type echoArgs struct {
	Text  string `json:"text" jsonschema:"required,description=Text to echo"`
	Times int    `json:"times,omitempty"`
}

func echoTool(t *testing.T) core.BaseTool {
	t.Helper()
	tool, err := NewFunctionTool("echo", "Echoes text", core.ToolKindCompute,
		func(ctx context.Context, args echoArgs, toolCtx *core.ToolContext) (any, error) {
			tc, ok := core.ToolContextFrom(ctx)
			if !ok || tc != toolCtx {
				return nil, errors.New("tool context not propagated")
			}
			return map[string]any{"text": args.Text, "times": args.Times}, nil
		})
	require.NoError(t, err)
	return tool
}

func TestFunctionToolSchema(t *testing.T) {
	decl := echoTool(t).GetDeclaration()
	assert.Equal(t, "echo", decl.Name)
	assert.Equal(t, "object", decl.Parameters["type"])
	assert.NotContains(t, decl.Parameters, "$schema")

	props, ok := decl.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Contains(t, props, "times")
	assert.Equal(t, []any{"text"}, decl.Parameters["required"])

	_, err := NewFunctionTool("bad", "", core.ToolKindCompute, func(ctx context.Context, args string, toolCtx *core.ToolContext) (any, error) {
		return nil, nil
	})
	assert.Error(t, err, "non-struct arguments are rejected")

	_, err = NewFunctionTool[echoArgs]("", "", core.ToolKindCompute, nil)
	assert.Error(t, err)
}

func TestRegistryRegister(t *testing.T) {
	registry, err := NewRegistry(0, echoTool(t), NewCurrencyReportTool())
	require.NoError(t, err)

	assert.Error(t, registry.Register(echoTool(t)), "names are unique")
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(MustFunctionTool("odd", "", core.ToolKind("magic"),
		func(ctx context.Context, args echoArgs, toolCtx *core.ToolContext) (any, error) { return nil, nil })))

	_, ok := registry.Lookup("echo")
	assert.True(t, ok)
	_, ok = registry.Lookup("Echo")
	assert.False(t, ok, "lookup is by exact name")

	descriptors := registry.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "echo", descriptors[0].Name)
	assert.Equal(t, core.ToolKindCompute, descriptors[0].Kind)
	assert.Equal(t, "generate_currency_report", descriptors[1].Name)
}

func TestRegistryInvoke(t *testing.T) {
	slow := MustFunctionTool("slow", "Never finishes in time", core.ToolKindLookup,
		func(ctx context.Context, args echoArgs, toolCtx *core.ToolContext) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	failing := MustFunctionTool("failing", "Always fails", core.ToolKindLookup,
		func(ctx context.Context, args echoArgs, toolCtx *core.ToolContext) (any, error) {
			return nil, &LookupError{Message: "API request failed"}
		})
	panicking := MustFunctionTool("panicking", "Panics", core.ToolKindCompute,
		func(ctx context.Context, args echoArgs, toolCtx *core.ToolContext) (any, error) {
			panic("kaboom")
		})

	registry, err := NewRegistry(50*time.Millisecond, echoTool(t), slow, failing, panicking)
	require.NoError(t, err)

	toolCtx := core.NewToolContext("t1", "c1", "call-1")
	ctx := context.Background()

	tests := []struct {
		name      string
		call      core.ToolCall
		wantError string
		want      any
	}{
		{
			name: "success",
			call: core.ToolCall{Name: "echo", Args: map[string]any{"text": "hi", "times": 2}},
			want: map[string]any{"text": "hi", "times": 2},
		},
		{name: "unknown tool", call: core.ToolCall{Name: "nope"}, wantError: "unknown tool: nope"},
		{name: "bad arguments", call: core.ToolCall{Name: "echo", Args: map[string]any{"text": 42}}, wantError: "invalid arguments for echo"},
		{name: "tool error", call: core.ToolCall{Name: "failing"}, wantError: "API request failed"},
		{name: "timeout", call: core.ToolCall{Name: "slow"}, wantError: "tool slow timed out"},
		{name: "panic", call: core.ToolCall{Name: "panicking"}, wantError: "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := registry.Invoke(ctx, &tt.call, toolCtx)
			if tt.wantError != "" {
				assert.True(t, obs.Failed())
				assert.Contains(t, obs.Error, tt.wantError)
				assert.Nil(t, obs.Output)
				return
			}
			assert.False(t, obs.Failed())
			assert.Equal(t, tt.want, obs.Output)
		})
	}
}
