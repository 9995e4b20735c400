package agents

import (
	"errors"
	"sync"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// Progress messages per tool class. They are advisory text for people.
const (
	ProgressLookup   = "Looking up external data..."
	ProgressDelegate = "Delegating to a collaborating agent..."
	ProgressCompute  = "Processing the results..."
)

// ProgressMessage returns the progress text for a tool class.
func ProgressMessage(kind core.ToolKind) string {
	switch kind {
	case core.ToolKindLookup:
		return ProgressLookup
	case core.ToolKindDelegate:
		return ProgressDelegate
	default:
		return ProgressCompute
	}
}

// ErrEmitterClosed is returned when an event is emitted after the terminal one.
var ErrEmitterClosed = errors.New("event emitted after terminal event")

// Emitter turns orchestrator progress into the ordered event channel of one
// request. It has exactly one producer and one consumer. The consumer must
// drain Events until it is closed; the channel closes right after the
// terminal event.
type Emitter struct {
	taskID    string
	contextID string
	events    chan a2a.StreamEvent
	observe   func(kind string)
	onFinish  func()

	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an emitter for one turn of a task.
func NewEmitter(taskID, contextID string, buffer int) *Emitter {
	return &Emitter{
		taskID:    taskID,
		contextID: contextID,
		events:    make(chan a2a.StreamEvent, buffer),
	}
}

// OnEvent registers a hook called with the kind of every emitted event.
func (e *Emitter) OnEvent(fn func(kind string)) {
	e.observe = fn
}

// OnFinish registers a hook that runs right before the terminal event is
// delivered.
func (e *Emitter) OnFinish(fn func()) {
	e.onFinish = fn
}

// Events returns the consumer side of the channel.
func (e *Emitter) Events() <-chan a2a.StreamEvent {
	return e.events
}

// Status emits a non-final status update.
func (e *Emitter) Status(status a2a.TaskStatus) error {
	return e.send(&a2a.TaskStatusUpdateEvent{
		Kind:      a2a.KindStatusUpdate,
		TaskID:    e.taskID,
		ContextID: e.contextID,
		Status:    status,
		Final:     false,
	}, false)
}

// Artifact emits an artifact update.
func (e *Emitter) Artifact(artifact a2a.Artifact) error {
	return e.send(&a2a.TaskArtifactUpdateEvent{
		Kind:      a2a.KindArtifactUpdate,
		TaskID:    e.taskID,
		ContextID: e.contextID,
		Artifact:  artifact,
		LastChunk: true,
	}, false)
}

// Finish emits the terminal status update and closes the channel.
func (e *Emitter) Finish(status a2a.TaskStatus) error {
	return e.send(&a2a.TaskStatusUpdateEvent{
		Kind:      a2a.KindStatusUpdate,
		TaskID:    e.taskID,
		ContextID: e.contextID,
		Status:    status,
		Final:     true,
	}, true)
}

// Closed reports whether the terminal event has been emitted.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Emitter) send(event a2a.StreamEvent, final bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmitterClosed
	}
	if final {
		e.closed = true
	}
	e.mu.Unlock()

	if final && e.onFinish != nil {
		e.onFinish()
	}
	e.events <- event
	if e.observe != nil {
		e.observe(event.EventKind())
	}
	if final {
		close(e.events)
	}
	return nil
}
