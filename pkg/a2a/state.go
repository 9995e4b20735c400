package a2a

import (
	"errors"
	"fmt"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateError         TaskState = "error"
)

// ErrIllegalTransition is returned for any transition the state machine does not allow.
var ErrIllegalTransition = errors.New("illegal task state transition")

// IllegalTransitionError carries the rejected edge.
type IllegalTransitionError struct {
	From TaskState
	To   TaskState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking},
	TaskStateWorking:       {TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateError},
	TaskStateInputRequired: {TaskStateWorking},
}

// IsTerminal reports whether nothing may leave the state.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateError
}

// EndsTurn reports whether the state closes the current request's turn.
// input-required ends a turn without ending the task.
func (s TaskState) EndsTurn() bool {
	return s.IsTerminal() || s == TaskStateInputRequired
}

// Valid reports whether s is one of the known states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateError:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns an error wrapping
// ErrIllegalTransition when the edge is not allowed.
func Transition(from, to TaskState) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
