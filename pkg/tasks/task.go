package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// Task is the stored unit of work. All mutation goes through its methods,
// which serialise field access. The turn flag enforces one writer at a time.
type Task struct {
	id        string
	contextID string
	createdAt time.Time

	mu        sync.Mutex
	status    a2a.TaskStatus
	history   []a2a.Message
	artifacts []a2a.Artifact
	steps     []core.Step
	metadata  map[string]any

	running bool
	cancel  context.CancelFunc
}

func newTask(id, contextID string) *Task {
	now := time.Now().UTC()
	return &Task{
		id:        id,
		contextID: contextID,
		createdAt: now,
		status:    a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: &now},
		metadata:  make(map[string]any),
	}
}

// ID returns the task ID.
func (t *Task) ID() string { return t.id }

// ContextID returns the conversation context the task belongs to.
func (t *Task) ContextID() string { return t.contextID }

// State returns the current lifecycle state.
func (t *Task) State() a2a.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.State
}

// Status returns a copy of the current status.
func (t *Task) Status() a2a.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Begin marks a turn as running. cancel is invoked by Cancel while the turn
// runs. It fails with ErrTaskBusy if another turn is in progress.
func (t *Task) Begin(cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("%w: %s", ErrTaskBusy, t.id)
	}
	t.running = true
	t.cancel = cancel
	return nil
}

// End releases the turn taken by Begin.
func (t *Task) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.cancel = nil
}

// Running reports whether a turn is in progress.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Cancel cancels the running turn. It reports false when no turn is running.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Transition moves the task to a new state through the state machine and
// returns the resulting status.
func (t *Task) Transition(to a2a.TaskState, msg *a2a.Message) (a2a.TaskStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := a2a.Transition(t.status.State, to); err != nil {
		return t.status, fmt.Errorf("task %s: %w", t.id, err)
	}

	now := time.Now().UTC()
	if msg != nil {
		stamped := *msg
		stamped.TaskID = t.id
		stamped.ContextID = t.contextID
		msg = &stamped
	}
	t.status = a2a.TaskStatus{State: to, Message: msg, Timestamp: &now}
	return t.status, nil
}

// AppendMessage adds a message to the history. History is append-only.
func (t *Task) AppendMessage(msg a2a.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg.TaskID = t.id
	msg.ContextID = t.contextID
	if msg.Kind == "" {
		msg.Kind = a2a.KindMessage
	}
	t.history = append(t.history, msg)
}

// AddArtifact attaches an artifact. An artifact ID can only be attached once.
func (t *Task) AddArtifact(artifact a2a.Artifact) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.artifacts {
		if existing.ArtifactID == artifact.ArtifactID {
			return fmt.Errorf("%w: %s", ErrArtifactExists, artifact.ArtifactID)
		}
	}
	t.artifacts = append(t.artifacts, artifact)
	return nil
}

// AppendStep records one tool invocation in the trace.
func (t *Task) AppendStep(step core.Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

// History returns a copy of the history.
func (t *Task) History() []a2a.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]a2a.Message(nil), t.history...)
}

// HistoryLen returns the number of history messages.
func (t *Task) HistoryLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// Steps returns a copy of the trace.
func (t *Task) Steps() []core.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Step(nil), t.steps...)
}

// Artifacts returns a copy of the attached artifacts.
func (t *Task) Artifacts() []a2a.Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]a2a.Artifact(nil), t.artifacts...)
}

// SetMetadata sets one metadata key.
func (t *Task) SetMetadata(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = value
}

// Snapshot returns the wire form of the task. A non-nil historyLength keeps
// only the most recent messages.
func (t *Task) Snapshot(historyLength *int) *a2a.Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.history
	if historyLength != nil {
		n := max(*historyLength, 0)
		if len(history) > n {
			history = history[len(history)-n:]
		}
	}

	var metadata map[string]any
	if len(t.metadata) > 0 {
		metadata = make(map[string]any, len(t.metadata))
		for k, v := range t.metadata {
			metadata[k] = v
		}
	}

	return &a2a.Task{
		Kind:      a2a.KindTask,
		ID:        t.id,
		ContextID: t.contextID,
		Status:    t.status,
		History:   append([]a2a.Message(nil), history...),
		Artifacts: append([]a2a.Artifact(nil), t.artifacts...),
		Metadata:  metadata,
	}
}
