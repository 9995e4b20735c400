// Package api serves the inspection and WebSocket streaming endpoints of an
// agent. The JSON-RPC protocol surface lives in pkg/a2a/server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/agent-protocol/a2a-delegation/internal/jsonrpc2"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
)

// maxFrameSize bounds the request frame read from a WebSocket.
const maxFrameSize = 4 << 20

// ServerConfig contains configuration for the API handler.
type ServerConfig struct {
	// AllowOrigins lists the origins allowed to open a WebSocket. Empty
	// allows any origin.
	AllowOrigins []string
}

// Server serves task inspection and WebSocket streaming.
type Server struct {
	config   ServerConfig
	router   *mux.Router
	store    *tasks.Store
	handler  jsonrpc2.TaskHandler
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

// TaskTrace is a task together with the tool steps of its turns.
type TaskTrace struct {
	Task  *a2a.Task   `json:"task"`
	Steps []core.Step `json:"steps"`
}

// ListTasksResponse represents the response for listing tasks.
type ListTasksResponse struct {
	ContextID string      `json:"contextId"`
	Tasks     []*a2a.Task `json:"tasks"`
}

// NewServer creates the API handler. metrics may be nil.
func NewServer(config ServerConfig, store *tasks.Store, handler jsonrpc2.TaskHandler, metrics *observability.Metrics) *Server {
	s := &Server{
		config:  config,
		store:   store,
		handler: handler,
		metrics: metrics,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	s.router.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleStream).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.AllowOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.AllowOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// handleListTasks returns the tasks of one context.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("contextId")
	if contextID == "" {
		http.Error(w, "Missing required parameter: contextId", http.StatusBadRequest)
		return
	}

	stored := s.store.ByContext(contextID)
	resp := ListTasksResponse{ContextID: contextID, Tasks: make([]*a2a.Task, 0, len(stored))}
	for _, task := range stored {
		resp.Tasks = append(resp.Tasks, task.Snapshot(nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetTask returns one task with its tool trace.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, TaskTrace{Task: task.Snapshot(nil), Steps: task.Steps()})
}

// handleStream serves message/stream over a WebSocket: the client sends one
// JSON-RPC request frame and receives one frame per event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade WebSocket connection", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.WebSocketConnected(1)
	defer s.metrics.WebSocketConnected(-1)

	conn.SetReadLimit(maxFrameSize)
	_, data, err := conn.ReadMessage()
	if err != nil {
		slog.Debug("WebSocket closed before request", "error", err)
		return
	}

	writer := newWSWriter(conn)
	req, rpcErr := jsonrpc2.DecodeRequest(data)
	if rpcErr == nil && req.Method != a2a.MethodStreamMessage {
		rpcErr = a2a.NewMethodNotFoundError(req.Method)
	}
	var params a2a.MessageSendParams
	if rpcErr == nil {
		rpcErr = jsonrpc2.DecodeParams(req.Params, &params)
	}
	if req != nil {
		writer.id = req.ID
	}
	if rpcErr != nil {
		writer.WriteError(rpcErr)
		writer.close()
		return
	}

	// The request context is not canceled on hijacked connections, so a
	// reader watches for the peer going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	events, err := s.handler.StreamMessage(ctx, &params)
	if err != nil {
		writer.WriteError(jsonrpc2.ToJSONRPCError(err))
		writer.close()
		return
	}
	if err := jsonrpc2.Pump(ctx, events, writer); err != nil {
		slog.Warn("WebSocket stream ended early", "request_id", req.ID, "error", err)
		return
	}
	writer.close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
