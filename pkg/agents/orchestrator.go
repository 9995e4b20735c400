package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
	"github.com/agent-protocol/a2a-delegation/pkg/tools"
)

// Reason codes carried in the "reason" metadata key of an error status message.
const (
	ReasonLoopBudgetExceeded = "loop_budget_exceeded"
	ReasonRepeatedToolCalls  = "repeated_tool_calls"
	ReasonEngineFailure      = "engine_failure"
	ReasonTimeout            = "timeout"
	ReasonCanceled           = "canceled"
)

// MetadataReason is the status message metadata key holding the reason code.
const MetadataReason = "reason"

// ErrLoopBudgetExceeded is the error behind a loop_budget_exceeded status.
var ErrLoopBudgetExceeded = errors.New("loop budget exceeded")

// OrchestratorConfig bounds one turn.
type OrchestratorConfig struct {
	// MaxSteps is the number of actions the engine may propose per turn.
	MaxSteps int `yaml:"max_steps"`
	// EngineTimeout bounds each call into the reasoning engine.
	EngineTimeout time.Duration `yaml:"engine_timeout"`
	// RepeatLimit is how many identical consecutive tool calls end the turn.
	RepeatLimit int `yaml:"repeat_limit"`
	// ArtifactName names the artifact attached on completion.
	ArtifactName string `yaml:"artifact_name"`
	// StrictAnswers rejects final answers whose message is empty or a JSON
	// fragment. The turn then fails with engine_failure.
	StrictAnswers bool `yaml:"strict_answers"`
}

// DefaultOrchestratorConfig returns the default turn bounds.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxSteps:      10,
		EngineTimeout: 60 * time.Second,
		RepeatLimit:   3,
		ArtifactName:  "result",
	}
}

// Orchestrator drives the bounded reasoning loop of one agent.
type Orchestrator struct {
	name        string
	instruction string
	engine      core.ReasoningEngine
	registry    *tools.Registry
	validator   *core.ResponseValidator
	cfg         OrchestratorConfig
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(name, instruction string, engine core.ReasoningEngine, registry *tools.Registry, cfg OrchestratorConfig, metrics *observability.Metrics) (*Orchestrator, error) {
	if engine == nil {
		return nil, fmt.Errorf("reasoning engine cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry cannot be nil")
	}

	defaults := DefaultOrchestratorConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaults.MaxSteps
	}
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = defaults.EngineTimeout
	}
	if cfg.RepeatLimit == 0 {
		cfg.RepeatLimit = defaults.RepeatLimit
	}
	if cfg.ArtifactName == "" {
		cfg.ArtifactName = defaults.ArtifactName
	}

	return &Orchestrator{
		name:        name,
		instruction: instruction,
		engine:      engine,
		registry:    registry,
		validator:   core.NewResponseValidator(cfg.StrictAnswers),
		cfg:         cfg,
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/agent-protocol/a2a-delegation/pkg/agents"),
	}, nil
}

// Name returns the agent name.
func (o *Orchestrator) Name() string { return o.name }

// Config returns the effective turn bounds.
func (o *Orchestrator) Config() OrchestratorConfig { return o.cfg }

// Run drives one turn of task until it completes, needs input or fails. The
// task must hold its turn and be in submitted or input-required. prior is
// the history of earlier tasks in the same context. Every path ends with
// exactly one terminal event on emit, and the returned status is the one
// that event carries.
func (o *Orchestrator) Run(ctx context.Context, task *tasks.Task, prior []a2a.Message, emit *Emitter) a2a.TaskStatus {
	ctx, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("a2a.agent", o.name),
		attribute.String("a2a.task_id", task.ID()),
		attribute.String("a2a.context_id", task.ContextID()),
	))
	defer span.End()

	logger := slog.Default().With("agent", o.name, "task_id", task.ID(), "context_id", task.ContextID())

	if _, err := task.Transition(a2a.TaskStateWorking, nil); err != nil {
		logger.Error("Task cannot start a turn", "error", err)
		status := task.Status()
		o.finishEvent(emit, status, logger)
		span.SetStatus(codes.Error, err.Error())
		return status
	}

	detector := NewLoopDetector(o.cfg.RepeatLimit)
	for step := 0; step < o.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return o.interrupted(ctx, task, emit, logger)
		}

		action, err := o.propose(ctx, task, prior)
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupted(ctx, task, emit, logger)
			}
			logger.Warn("Reasoning engine failed", "engine", o.engine.Name(), "step", step, "error", err)
			span.RecordError(err)
			return o.fail(task, emit, ReasonEngineFailure, fmt.Sprintf("The reasoning engine failed: %v", err), logger)
		}

		switch a := action.(type) {
		case *core.FinalAnswer:
			logger.Info("Turn finished", "state", a.Status, "steps", step+1)
			return o.finish(task, emit, a, logger)
		case *core.ToolCall:
			if detector.Observe(a) {
				return o.fail(task, emit, ReasonRepeatedToolCalls,
					fmt.Sprintf("Stopped after %d identical calls to %s.", o.cfg.RepeatLimit, a.Name), logger)
			}
			o.runTool(ctx, task, emit, a, logger)
		}
	}

	span.RecordError(ErrLoopBudgetExceeded)
	return o.fail(task, emit, ReasonLoopBudgetExceeded,
		fmt.Sprintf("%s: no final answer after %d reasoning steps.", ErrLoopBudgetExceeded, o.cfg.MaxSteps), logger)
}

// propose asks the engine for the next action under the engine timeout.
func (o *Orchestrator) propose(ctx context.Context, task *tasks.Task, prior []a2a.Message) (core.Action, error) {
	engineCtx, cancel := context.WithTimeout(ctx, o.cfg.EngineTimeout)
	defer cancel()

	history := append(append([]a2a.Message(nil), prior...), task.History()...)
	steps := task.Steps()
	for i := range steps {
		steps[i].HistoryLen += len(prior)
	}

	req := &core.ProposalRequest{
		Instruction: o.instruction,
		History:     history,
		Steps:       steps,
		Tools:       o.registry.Descriptors(),
	}

	start := time.Now()
	action, err := o.engine.ProposeNextAction(engineCtx, req)
	if err == nil {
		err = o.validator.ValidateAction(action)
	}
	if err != nil && errors.Is(engineCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", o.cfg.EngineTimeout, err)
	}
	o.metrics.ObserveEngine(o.engine.Name(), err != nil, time.Since(start))
	return action, err
}

// runTool announces, executes and records one tool call. Failures become
// observations.
func (o *Orchestrator) runTool(ctx context.Context, task *tasks.Task, emit *Emitter, call *core.ToolCall, logger *slog.Logger) {
	if call.ID == "" {
		call.ID = a2a.NewID()
	}

	kind := core.ToolKindCompute
	if tool, ok := o.registry.Lookup(call.Name); ok {
		kind = tool.Kind()
	}

	progress := a2a.NewMessage(a2a.RoleAgent, a2a.NewTextPart(ProgressMessage(kind)))
	status, err := task.Transition(a2a.TaskStateWorking, &progress)
	if err != nil {
		logger.Error("Failed to record progress", "error", err)
	} else if err := emit.Status(status); err != nil {
		logger.Error("Failed to emit progress", "error", err)
	}

	ctx, span := o.tracer.Start(ctx, "tool "+call.Name, trace.WithAttributes(
		attribute.String("a2a.tool.name", call.Name),
		attribute.String("a2a.tool.kind", string(kind)),
	))
	start := time.Now()
	historyLen := task.HistoryLen()
	observation := o.registry.Invoke(ctx, call, core.NewToolContext(task.ID(), task.ContextID(), call.ID))
	duration := time.Since(start)
	if observation.Failed() {
		span.SetStatus(codes.Error, observation.Error)
		logger.Warn("Tool failed", "tool", call.Name, "kind", kind, "error", observation.Error)
	} else {
		logger.Debug("Tool finished", "tool", call.Name, "kind", kind, "duration", duration)
	}
	span.End()
	o.metrics.ObserveTool(call.Name, string(kind), observation.Failed(), duration)

	task.AppendStep(core.Step{
		Call:        *call,
		Kind:        kind,
		Observation: observation,
		HistoryLen:  historyLen,
		StartedAt:   start,
		Duration:    duration,
	})
}

// finish applies the engine's classification and emits the closing events.
func (o *Orchestrator) finish(task *tasks.Task, emit *Emitter, answer *core.FinalAnswer, logger *slog.Logger) a2a.TaskStatus {
	text := answer.Message
	if text == "" {
		text = defaultMessage(answer.Status)
	}
	msg := a2a.NewMessage(a2a.RoleAgent, a2a.NewTextPart(text))
	task.AppendMessage(msg)

	if answer.Status == a2a.TaskStateCompleted {
		artifact := a2a.Artifact{
			ArtifactID: a2a.NewID(),
			Name:       o.cfg.ArtifactName,
			Parts:      []a2a.Part{a2a.NewTextPart(text)},
		}
		if err := task.AddArtifact(artifact); err != nil {
			logger.Error("Failed to attach artifact", "error", err)
		} else if err := emit.Artifact(artifact); err != nil {
			logger.Error("Failed to emit artifact", "error", err)
		}
	}

	status, err := task.Transition(answer.Status, &msg)
	if err != nil {
		logger.Error("Failed to finish task", "state", answer.Status, "error", err)
		status = task.Status()
	}
	o.finishEvent(emit, status, logger)
	return status
}

// fail ends the turn in error with a reason code.
func (o *Orchestrator) fail(task *tasks.Task, emit *Emitter, reason, text string, logger *slog.Logger) a2a.TaskStatus {
	logger.Warn("Task failed", "reason", reason, "message", text)

	msg := a2a.NewMessage(a2a.RoleAgent, a2a.NewTextPart(text))
	msg.Metadata = map[string]any{MetadataReason: reason}
	task.AppendMessage(msg)

	status, err := task.Transition(a2a.TaskStateError, &msg)
	if err != nil {
		logger.Error("Failed to move task to error", "error", err)
		status = task.Status()
	}
	o.finishEvent(emit, status, logger)
	return status
}

func (o *Orchestrator) interrupted(ctx context.Context, task *tasks.Task, emit *Emitter, logger *slog.Logger) a2a.TaskStatus {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return o.fail(task, emit, ReasonTimeout, "The task timed out before it could finish.", logger)
	}
	return o.fail(task, emit, ReasonCanceled, "The task was canceled.", logger)
}

func (o *Orchestrator) finishEvent(emit *Emitter, status a2a.TaskStatus, logger *slog.Logger) {
	if err := emit.Finish(status); err != nil {
		logger.Error("Failed to emit terminal event", "error", err)
	}
}

func defaultMessage(state a2a.TaskState) string {
	switch state {
	case a2a.TaskStateCompleted:
		return "Done."
	case a2a.TaskStateError:
		return "The request could not be completed."
	default:
		return "We are unable to process your request at the moment. Please try again."
	}
}

// StatusReason returns the reason code of an error status, if any.
func StatusReason(status a2a.TaskStatus) string {
	if status.Message == nil {
		return ""
	}
	reason, _ := status.Message.Metadata[MetadataReason].(string)
	return reason
}
