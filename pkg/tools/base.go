// Package tools provides the tool registry and the concrete tools used by
// the currency and reporting agents.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// BaseToolImpl provides the identity half of the BaseTool interface.
type BaseToolImpl struct {
	name        string
	description string
	kind        core.ToolKind
}

// NewBaseTool creates a new base tool implementation.
func NewBaseTool(name, description string, kind core.ToolKind) *BaseToolImpl {
	return &BaseToolImpl{
		name:        name,
		description: description,
		kind:        kind,
	}
}

// Name returns the tool's unique identifier.
func (t *BaseToolImpl) Name() string {
	return t.name
}

// Description returns a description of the tool's purpose.
func (t *BaseToolImpl) Description() string {
	return t.description
}

// Kind returns the class of work the tool performs.
func (t *BaseToolImpl) Kind() core.ToolKind {
	return t.kind
}

// FunctionTool wraps a typed Go function as a tool. The parameter schema is
// reflected from Args using json and jsonschema struct tags:
//
//	type Args struct {
//	    From string `json:"currency_from" jsonschema:"required,description=Currency to convert from"`
//	}
type FunctionTool[Args any] struct {
	*BaseToolImpl
	fn     func(ctx context.Context, args Args, toolCtx *core.ToolContext) (any, error)
	schema map[string]any
}

var _ core.BaseTool = (*FunctionTool[struct{}])(nil)

// NewFunctionTool creates a new function tool from a typed Go function.
func NewFunctionTool[Args any](name, description string, kind core.ToolKind, fn func(ctx context.Context, args Args, toolCtx *core.ToolContext) (any, error)) (*FunctionTool[Args], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s has no function", name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for tool %s: %w", name, err)
	}

	return &FunctionTool[Args]{
		BaseToolImpl: NewBaseTool(name, description, kind),
		fn:           fn,
		schema:       schema,
	}, nil
}

// MustFunctionTool is NewFunctionTool for statically known tools.
func MustFunctionTool[Args any](name, description string, kind core.ToolKind, fn func(ctx context.Context, args Args, toolCtx *core.ToolContext) (any, error)) *FunctionTool[Args] {
	tool, err := NewFunctionTool(name, description, kind, fn)
	if err != nil {
		panic(err)
	}
	return tool
}

// GetDeclaration returns the function declaration for engine integration.
func (t *FunctionTool[Args]) GetDeclaration() *core.FunctionDeclaration {
	return &core.FunctionDeclaration{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema,
	}
}

// RunAsync decodes the argument map into Args and calls the function.
func (t *FunctionTool[Args]) RunAsync(ctx context.Context, args map[string]any, toolCtx *core.ToolContext) (any, error) {
	var typed Args
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
		if err := json.Unmarshal(raw, &typed); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
		}
	}
	return t.fn(ctx, typed, toolCtx)
}

// generateSchema reflects an object schema for T, inlined and without
// $schema or $id.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	delete(schema, "$schema")
	delete(schema, "$id")

	if schema["type"] != "object" {
		return nil, fmt.Errorf("tool arguments must be a struct, got %v", schema["type"])
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

func toolLogger(toolCtx *core.ToolContext) *slog.Logger {
	if toolCtx == nil || toolCtx.Logger == nil {
		return slog.Default()
	}
	return toolCtx.Logger
}
