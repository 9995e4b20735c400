package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// mockTaskHandler is a TaskHandler that records calls and answers from
// canned tasks and events.
type mockTaskHandler struct {
	mu     sync.Mutex
	tasks  map[string]*a2a.Task
	events []a2a.StreamEvent
	err    error
	calls  []string
}

var _ TaskHandler = (*mockTaskHandler)(nil)

func newMockTaskHandler() *mockTaskHandler {
	return &mockTaskHandler{tasks: make(map[string]*a2a.Task)}
}

func (h *mockTaskHandler) record(method string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, method)
	return h.err
}

func (h *mockTaskHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *mockTaskHandler) SendMessage(_ context.Context, params *a2a.MessageSendParams) (*a2a.Task, error) {
	if err := h.record(a2a.MethodSendMessage); err != nil {
		return nil, err
	}
	task := &a2a.Task{
		Kind:      a2a.KindTask,
		ID:        "task-1",
		ContextID: "ctx-1",
		Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted},
		History:   []a2a.Message{params.Message},
	}
	h.mu.Lock()
	h.tasks[task.ID] = task
	h.mu.Unlock()
	return task, nil
}

func (h *mockTaskHandler) StreamMessage(_ context.Context, _ *a2a.MessageSendParams) (<-chan a2a.StreamEvent, error) {
	if err := h.record(a2a.MethodStreamMessage); err != nil {
		return nil, err
	}
	ch := make(chan a2a.StreamEvent, len(h.events))
	for _, event := range h.events {
		ch <- event
	}
	close(ch)
	return ch, nil
}

func (h *mockTaskHandler) GetTask(_ context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if err := h.record(a2a.MethodGetTask); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	task, ok := h.tasks[params.ID]
	if !ok {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	return task, nil
}

func (h *mockTaskHandler) CancelTask(_ context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	if err := h.record(a2a.MethodCancelTask); err != nil {
		return nil, err
	}
	return nil, a2a.NewTaskNotResumableError(params.ID, a2a.TaskStateCompleted)
}

func userMessage(text string) a2a.Message {
	return a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(text))
}

// makeRequest builds a JSON-RPC request body.
func makeRequest(t *testing.T, method string, params any, id any) []byte {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(a2a.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	})
	require.NoError(t, err)
	return body
}

// post sends body to url and decodes a unary response.
func post(t *testing.T, url string, body []byte) *rawResponse {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

// rawResponse keeps the result raw so each test decodes what it expects.
type rawResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      any               `json:"id"`
	Result  json.RawMessage   `json:"result"`
	Error   *a2a.JSONRPCError `json:"error"`
}
