// Package executor runs A2A requests against an agent's orchestrator and
// task store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agent-protocol/a2a-delegation/internal/jsonrpc2"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/agents"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
)

// Config contains configuration for the Executor.
type Config struct {
	// TurnTimeout is the maximum time one turn may run.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// EventBuffer is the capacity of each turn's event channel.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns default configuration for the Executor.
func DefaultConfig() Config {
	return Config{
		TurnTimeout: 5 * time.Minute,
		EventBuffer: 16,
	}
}

// Executor accepts messages for one agent, runs each turn in its own
// goroutine and hands the turn's events to the transport.
type Executor struct {
	orchestrator *agents.Orchestrator
	store        *tasks.Store
	config       Config
	metrics      *observability.Metrics

	mu      sync.Mutex
	running map[string]chan struct{}
	wg      sync.WaitGroup
}

var _ jsonrpc2.TaskHandler = (*Executor)(nil)

// New creates an executor. metrics may be nil.
func New(orchestrator *agents.Orchestrator, store *tasks.Store, config Config, metrics *observability.Metrics) *Executor {
	defaults := DefaultConfig()
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = defaults.TurnTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}
	return &Executor{
		orchestrator: orchestrator,
		store:        store,
		config:       config,
		metrics:      metrics,
		running:      make(map[string]chan struct{}),
	}
}

// SendMessage runs one turn and returns the task once the turn ends.
func (e *Executor) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (*a2a.Task, error) {
	task, events, err := e.start(ctx, params)
	if err != nil {
		return nil, err
	}
	for range events {
	}

	var historyLength *int
	if params.Configuration != nil {
		historyLength = params.Configuration.HistoryLength
	}
	return task.Snapshot(historyLength), nil
}

// StreamMessage runs one turn and returns its events. The caller must drain
// the channel.
func (e *Executor) StreamMessage(ctx context.Context, params *a2a.MessageSendParams) (<-chan a2a.StreamEvent, error) {
	_, events, err := e.start(ctx, params)
	return events, err
}

// GetTask returns a snapshot of a stored task.
func (e *Executor) GetTask(_ context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	task, err := e.store.Get(params.ID)
	if err != nil {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	return task.Snapshot(params.HistoryLength), nil
}

// CancelTask cancels the running turn of a task and waits for it to end.
// Only a running task can be canceled.
func (e *Executor) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	task, err := e.store.Get(params.ID)
	if err != nil {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}

	e.mu.Lock()
	done := e.running[task.ID()]
	e.mu.Unlock()

	if done == nil || !task.Cancel() {
		return nil, a2a.NewTaskNotResumableError(task.ID(), task.State())
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	slog.Info("Canceled task", "agent", e.orchestrator.Name(), "task_id", task.ID())
	return task.Snapshot(nil), nil
}

// Shutdown cancels every running turn and waits for them to finish.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if task, err := e.store.Get(id); err == nil {
			task.Cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start resolves the target task, takes its turn and launches the
// orchestrator.
func (e *Executor) start(ctx context.Context, params *a2a.MessageSendParams) (*tasks.Task, <-chan a2a.StreamEvent, error) {
	turnCtx, cancel := context.WithTimeout(ctx, e.config.TurnTimeout)

	task, err := e.acquire(params, cancel)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	task.AppendMessage(params.Message)
	prior := e.store.ContextHistory(task.ContextID(), task.ID())
	agent := e.orchestrator.Name()

	emitter := agents.NewEmitter(task.ID(), task.ContextID(), e.config.EventBuffer)
	emitter.OnEvent(func(kind string) {
		e.metrics.ObserveEvent(agent, kind)
	})
	done := make(chan struct{})
	emitter.OnFinish(func() {
		e.release(task, done)
	})

	e.mu.Lock()
	e.running[task.ID()] = done
	e.mu.Unlock()

	e.metrics.TurnStarted(agent)
	e.metrics.SetStoredTasks(agent, e.store.Len())
	slog.Info("Starting turn", "agent", agent, "task_id", task.ID(), "context_id", task.ContextID(), "prior_messages", len(prior))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		status := e.run(turnCtx, task, prior, emitter, done)
		e.release(task, done)
		e.metrics.TurnFinished(agent, string(status.State), agents.StatusReason(status))
	}()

	return task, emitter.Events(), nil
}

// acquire applies the new-versus-resume rules and takes the task's turn.
func (e *Executor) acquire(params *a2a.MessageSendParams, cancel context.CancelFunc) (*tasks.Task, error) {
	msg := params.Message
	if msg.TaskID == "" {
		contextID := msg.ContextID
		if contextID == "" {
			contextID = params.SessionID
		}
		task := e.store.Create(contextID)
		if err := task.Begin(cancel); err != nil {
			return nil, err
		}
		return task, nil
	}

	task, err := e.store.Get(msg.TaskID)
	if err != nil {
		return nil, a2a.NewTaskNotFoundError(msg.TaskID)
	}
	if msg.ContextID != "" && msg.ContextID != task.ContextID() {
		return nil, a2a.NewInvalidParamsError(fmt.Sprintf("contextId %s does not match task %s", msg.ContextID, task.ID()))
	}
	if state := task.State(); state.IsTerminal() {
		return nil, a2a.NewTaskNotResumableError(task.ID(), state)
	}
	if err := task.Begin(cancel); err != nil {
		if errors.Is(err, tasks.ErrTaskBusy) {
			return nil, a2a.NewTaskBusyError(task.ID())
		}
		return nil, err
	}
	if state := task.State(); state != a2a.TaskStateInputRequired {
		task.End()
		if state.IsTerminal() {
			return nil, a2a.NewTaskNotResumableError(task.ID(), state)
		}
		return nil, a2a.NewTaskBusyError(task.ID())
	}
	return task, nil
}

// run drives the orchestrator. A panic ends the task in error so the
// stream still gets its terminal event.
func (e *Executor) run(ctx context.Context, task *tasks.Task, prior []a2a.Message, emitter *agents.Emitter, done chan struct{}) (status a2a.TaskStatus) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		slog.Error("Turn panicked", "agent", e.orchestrator.Name(), "task_id", task.ID(), "panic", r)
		if emitter.Closed() {
			status = task.Status()
			return
		}

		msg := a2a.NewMessage(a2a.RoleAgent, a2a.NewTextPart(fmt.Sprintf("The reasoning engine failed: %v", r)))
		msg.Metadata = map[string]any{agents.MetadataReason: agents.ReasonEngineFailure}
		task.AppendMessage(msg)
		var err error
		if status, err = task.Transition(a2a.TaskStateError, &msg); err != nil {
			status = task.Status()
		}
		if err := emitter.Finish(status); err != nil {
			e.release(task, done)
		}
	}()

	return e.orchestrator.Run(ctx, task, prior, emitter)
}

// release ends the task's turn. It runs before the terminal event reaches
// the caller, so a follow-up sent on receipt never sees the task busy.
func (e *Executor) release(task *tasks.Task, done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[task.ID()] != done {
		return
	}
	delete(e.running, task.ID())
	task.End()
	close(done)
}
