package core

import (
	"encoding/json"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// ToolKind classifies a tool by the kind of work it does. The class decides
// the progress message shown to the caller while the tool runs.
type ToolKind string

const (
	// ToolKindLookup fetches external data.
	ToolKindLookup ToolKind = "lookup"
	// ToolKindDelegate calls a collaborating agent.
	ToolKindDelegate ToolKind = "delegate"
	// ToolKindCompute processes results locally.
	ToolKindCompute ToolKind = "compute"
)

// FunctionDeclaration describes a tool to a reasoning engine.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolDescriptor is what the engine sees of a registered tool.
type ToolDescriptor struct {
	FunctionDeclaration
	Kind ToolKind `json:"kind"`
}

// Action is what a reasoning engine proposes next. The variant is closed:
// *ToolCall or *FinalAnswer.
type Action interface {
	isAction()
}

// ToolCall asks the orchestrator to invoke a registered tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (*ToolCall) isAction() {}

// Signature is a stable rendering of name and arguments used to detect
// repeated identical calls.
func (c *ToolCall) Signature() string {
	args, _ := json.Marshal(c.Args)
	return c.Name + "(" + string(args) + ")"
}

// FinalAnswer ends the turn with the engine's classification.
type FinalAnswer struct {
	Status  a2a.TaskState `json:"status"`
	Message string        `json:"message"`
}

func (*FinalAnswer) isAction() {}

// Observation is the outcome of one tool invocation as fed back to the engine.
// Exactly one of Output and Error is set.
type Observation struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the tool invocation failed.
func (o Observation) Failed() bool {
	return o.Error != ""
}

// Content renders the observation the way engines receive it.
func (o Observation) Content() map[string]any {
	if o.Failed() {
		return map[string]any{"error": o.Error}
	}
	return map[string]any{"result": o.Output}
}

// Step is one tool invocation in a task's trace. HistoryLen records how many
// history messages existed when the step ran, so prompts can interleave
// steps with the conversation.
type Step struct {
	Call        ToolCall      `json:"call"`
	Kind        ToolKind      `json:"kind"`
	Observation Observation   `json:"observation"`
	HistoryLen  int           `json:"historyLen"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// ProposalRequest is everything an engine needs to propose the next action.
type ProposalRequest struct {
	Instruction string
	History     []a2a.Message
	Steps       []Step
	Tools       []ToolDescriptor
}
