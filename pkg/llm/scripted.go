package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// ErrScriptExhausted is returned when a scripted engine runs out of steps.
var ErrScriptExhausted = errors.New("scripted engine has no more steps")

// ScriptStep produces one action of a scripted engine.
type ScriptStep func(ctx context.Context, req *core.ProposalRequest) (core.Action, error)

// Reply returns a step that always proposes action.
func Reply(action core.Action) ScriptStep {
	return func(context.Context, *core.ProposalRequest) (core.Action, error) {
		return action, nil
	}
}

// Call returns a step proposing a tool call.
func Call(name string, args map[string]any) ScriptStep {
	return func(context.Context, *core.ProposalRequest) (core.Action, error) {
		return &core.ToolCall{Name: name, Args: args}, nil
	}
}

// Fail returns a step that fails with err.
func Fail(err error) ScriptStep {
	return func(context.Context, *core.ProposalRequest) (core.Action, error) {
		return nil, err
	}
}

// Stall returns a step that blocks until the context is done.
func Stall() ScriptStep {
	return func(ctx context.Context, _ *core.ProposalRequest) (core.Action, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// ScriptedEngine replays a fixed sequence of steps. Once the script is
// exhausted the last step repeats when Loop is set, otherwise every call
// fails with ErrScriptExhausted. It records every request it sees.
type ScriptedEngine struct {
	Loop bool

	mu       sync.Mutex
	steps    []ScriptStep
	next     int
	requests []*core.ProposalRequest
}

var _ core.ReasoningEngine = (*ScriptedEngine)(nil)

// NewScriptedEngine creates an engine that replays steps in order.
func NewScriptedEngine(steps ...ScriptStep) *ScriptedEngine {
	return &ScriptedEngine{steps: steps}
}

// Name returns the engine name.
func (e *ScriptedEngine) Name() string {
	return "scripted"
}

// ProposeNextAction runs the next scripted step.
func (e *ScriptedEngine) ProposeNextAction(ctx context.Context, req *core.ProposalRequest) (core.Action, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	var step ScriptStep
	switch {
	case e.next < len(e.steps):
		step = e.steps[e.next]
		e.next++
	case e.Loop && len(e.steps) > 0:
		step = e.steps[len(e.steps)-1]
	}
	e.mu.Unlock()

	if step == nil {
		return nil, ErrScriptExhausted
	}
	return step(ctx, req)
}

// Requests returns the requests seen so far.
func (e *ScriptedEngine) Requests() []*core.ProposalRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*core.ProposalRequest(nil), e.requests...)
}

// Close releases resources held by the engine.
func (e *ScriptedEngine) Close() error {
	return nil
}
