package a2a

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StreamEvent is one frame of a message/stream response. The variant is
// closed: *TaskStatusUpdateEvent and *TaskArtifactUpdateEvent.
type StreamEvent interface {
	EventKind() string
	GetTaskID() string
	// IsFinal reports whether the event ends the stream.
	IsFinal() bool
	streamEvent()
}

// TaskStatusUpdateEvent is sent when a task's status changes.
type TaskStatusUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskStatusUpdateEvent) EventKind() string { return KindStatusUpdate }
func (e *TaskStatusUpdateEvent) GetTaskID() string { return e.TaskID }
func (e *TaskStatusUpdateEvent) IsFinal() bool     { return e.Final }
func (e *TaskStatusUpdateEvent) streamEvent()      {}

// TaskArtifactUpdateEvent is sent when an artifact is produced.
type TaskArtifactUpdateEvent struct {
	Kind      string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskArtifactUpdateEvent) EventKind() string { return KindArtifactUpdate }
func (e *TaskArtifactUpdateEvent) GetTaskID() string { return e.TaskID }
func (e *TaskArtifactUpdateEvent) IsFinal() bool     { return false }
func (e *TaskArtifactUpdateEvent) streamEvent()      {}

// DecodeStreamEvent dispatches on the "kind" discriminator.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	switch head.Kind {
	case KindStatusUpdate:
		var event TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to decode status update: %w", err)
		}
		return &event, nil
	case KindArtifactUpdate:
		var event TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to decode artifact update: %w", err)
		}
		return &event, nil
	default:
		return nil, fmt.Errorf("unknown stream event kind: %q", head.Kind)
	}
}

// NewID returns a fresh random identifier used for tasks, contexts,
// messages, artifacts and request ids.
func NewID() string {
	return uuid.NewString()
}
