// Package tasks provides the process-wide task store.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

var (
	// ErrTaskNotFound is returned for unknown or evicted task IDs.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskBusy is returned when a turn is already running for a task.
	ErrTaskBusy = errors.New("task is busy")
	// ErrArtifactExists is returned when an artifact is attached twice.
	ErrArtifactExists = errors.New("artifact already attached")
)

// Config bounds the store. Tasks are evicted least-recently-used once
// MaxTasks is reached, and TTL after they were stored.
type Config struct {
	MaxTasks int           `yaml:"max_tasks"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns the default store bounds.
func DefaultConfig() Config {
	return Config{
		MaxTasks: 10000,
		TTL:      time.Hour,
	}
}

// EvictFunc is notified when a task leaves the store.
type EvictFunc func(task *Task)

// Store keeps tasks by ID with a secondary index by context ID. It is safe
// for concurrent use. Callers hold no store lock while a task runs.
type Store struct {
	tasks *expirable.LRU[string, *Task]

	// indexMu is never held while calling into tasks, whose eviction
	// callback takes it.
	indexMu   sync.Mutex
	byContext map[string][]string

	onEvict EvictFunc
}

// NewStore creates a task store.
func NewStore(cfg Config, onEvict EvictFunc) *Store {
	defaults := DefaultConfig()
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = defaults.MaxTasks
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}

	s := &Store{
		byContext: make(map[string][]string),
		onEvict:   onEvict,
	}
	s.tasks = expirable.NewLRU[string, *Task](cfg.MaxTasks, s.evicted, cfg.TTL)
	return s
}

// Create stores a new task in the submitted state. An empty contextID gets a
// fresh one.
func (s *Store) Create(contextID string) *Task {
	if contextID == "" {
		contextID = a2a.NewID()
	}
	task := newTask(a2a.NewID(), contextID)

	s.indexMu.Lock()
	s.byContext[contextID] = append(s.byContext[contextID], task.id)
	s.indexMu.Unlock()

	s.tasks.Add(task.id, task)
	slog.Debug("Created task", "task_id", task.id, "context_id", contextID)
	return task
}

// Get returns the task with the given ID and refreshes its recency.
func (s *Store) Get(taskID string) (*Task, error) {
	task, ok := s.tasks.Get(taskID)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// Acquire returns the task with its turn taken. The caller must call End.
func (s *Store) Acquire(taskID string, cancel context.CancelFunc) (*Task, error) {
	task, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Begin(cancel); err != nil {
		return nil, err
	}
	return task, nil
}

// ByContext returns the stored tasks of one context in creation order.
func (s *Store) ByContext(contextID string) []*Task {
	s.indexMu.Lock()
	ids := append([]string(nil), s.byContext[contextID]...)
	s.indexMu.Unlock()

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks.Peek(id); ok {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// ContextHistory returns the history of the context's tasks created before
// taskID, oldest first. It gives a new task the earlier turns of its
// conversation.
func (s *Store) ContextHistory(contextID, taskID string) []a2a.Message {
	var history []a2a.Message
	for _, task := range s.ByContext(contextID) {
		if task.id == taskID {
			break
		}
		history = append(history, task.History()...)
	}
	return history
}

// Delete removes a task.
func (s *Store) Delete(taskID string) {
	s.tasks.Remove(taskID)
}

// Len returns the number of stored tasks.
func (s *Store) Len() int {
	return s.tasks.Len()
}

func (s *Store) evicted(taskID string, task *Task) {
	s.indexMu.Lock()
	ids := s.byContext[task.contextID]
	for i, id := range ids {
		if id == taskID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byContext, task.contextID)
	} else {
		s.byContext[task.contextID] = ids
	}
	s.indexMu.Unlock()

	slog.Debug("Evicted task", "task_id", taskID, "context_id", task.contextID, "state", task.State())
	if s.onEvict != nil {
		s.onEvict(task)
	}
}
