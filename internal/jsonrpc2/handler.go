package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// maxBodySize bounds a request body.
const maxBodySize = 4 << 20

// TaskHandler defines the interface for handling A2A protocol operations.
// Errors that are *a2a.JSONRPCError are sent as is; anything else becomes
// an internal error.
type TaskHandler interface {
	SendMessage(ctx context.Context, params *a2a.MessageSendParams) (*a2a.Task, error)
	// StreamMessage returns the event channel of one turn. The channel is
	// closed after the terminal event.
	StreamMessage(ctx context.Context, params *a2a.MessageSendParams) (<-chan a2a.StreamEvent, error)
	GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error)
	CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error)
}

// RequestObserver is told the outcome of every dispatched request. For
// message/stream, err is the outcome of opening the stream.
type RequestObserver func(method string, err error, d time.Duration)

// Server represents a JSON-RPC 2.0 server for A2A protocol
type Server struct {
	handler  TaskHandler
	observer RequestObserver
}

// NewServer creates a new A2A JSON-RPC 2.0 server with the given task handler
func NewServer(handler TaskHandler) *Server {
	return &Server{
		handler: handler,
	}
}

// Observe installs fn as the request observer.
func (s *Server) Observe(fn RequestObserver) *Server {
	s.observer = fn
	return s
}

func (s *Server) observe(method string, err error, start time.Time) {
	if s.observer != nil {
		s.observer(method, err, time.Since(start))
	}
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if isBatch(body) {
		w.Header().Set("Content-Type", "application/json")
		s.handleBatchRequest(r.Context(), w, body)
		return
	}

	req, rpcErr := DecodeRequest(body)
	if rpcErr != nil {
		var id any
		if req != nil {
			id = req.ID
		}
		WriteResponse(w, NewErrorResponse(id, rpcErr))
		return
	}

	if req.Method == a2a.MethodStreamMessage {
		s.handleStream(r.Context(), w, req)
		return
	}

	resp := s.Process(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteResponse(w, resp)
}

// handleStream serves message/stream as Server-Sent Events. Failures before
// the first event are returned as a plain JSON-RPC error response.
func (s *Server) handleStream(ctx context.Context, w http.ResponseWriter, req *a2a.JSONRPCRequest) {
	start := time.Now()
	var params a2a.MessageSendParams
	if rpcErr := DecodeParams(req.Params, &params); rpcErr != nil {
		s.observe(req.Method, rpcErr, start)
		WriteResponse(w, NewErrorResponse(req.ID, rpcErr))
		return
	}

	events, err := s.handler.StreamMessage(ctx, &params)
	s.observe(req.Method, err, start)
	if err != nil {
		WriteResponse(w, NewErrorResponse(req.ID, err))
		return
	}

	sw := NewStreamWriter(w, req.ID)
	defer sw.Close()
	if err := Pump(ctx, events, sw); err != nil {
		slog.Warn("Stream ended early", "request_id", req.ID, "error", err)
	}
}

// handleBatchRequest processes a batch of unary JSON-RPC requests
func (s *Server) handleBatchRequest(ctx context.Context, w http.ResponseWriter, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		WriteResponse(w, NewErrorResponse(nil, a2a.NewJSONParseError(err.Error())))
		return
	}

	if len(requests) == 0 {
		WriteResponse(w, NewErrorResponse(nil, a2a.NewInvalidRequestError("Batch request cannot be empty")))
		return
	}

	responses := make([]*a2a.JSONRPCResponse, 0, len(requests))
	for _, raw := range requests {
		req, rpcErr := DecodeRequest(raw)
		if rpcErr != nil {
			var id any
			if req != nil {
				id = req.ID
			}
			responses = append(responses, NewErrorResponse(id, rpcErr))
			continue
		}
		if req.Method == a2a.MethodStreamMessage {
			responses = append(responses, NewErrorResponse(req.ID, a2a.NewInvalidRequestError("message/stream cannot be batched")))
			continue
		}
		if resp := s.Process(ctx, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		slog.Warn("Failed to write batch response", "error", err)
	}
}

// Process handles a single unary JSON-RPC request. It returns nil for
// notifications.
func (s *Server) Process(ctx context.Context, req *a2a.JSONRPCRequest) (resp *a2a.JSONRPCResponse) {
	var (
		result any
		err    error
	)
	start := time.Now()
	defer func() {
		if resp != nil && resp.Error != nil {
			s.observe(req.Method, resp.Error, start)
			return
		}
		s.observe(req.Method, nil, start)
	}()

	switch req.Method {
	case a2a.MethodSendMessage:
		var params a2a.MessageSendParams
		if rpcErr := DecodeParams(req.Params, &params); rpcErr != nil {
			return respond(req, nil, rpcErr)
		}
		result, err = s.handler.SendMessage(ctx, &params)

	case a2a.MethodGetTask:
		var params a2a.TaskQueryParams
		if rpcErr := DecodeParams(req.Params, &params); rpcErr != nil {
			return respond(req, nil, rpcErr)
		}
		result, err = s.handler.GetTask(ctx, &params)

	case a2a.MethodCancelTask:
		var params a2a.TaskIDParams
		if rpcErr := DecodeParams(req.Params, &params); rpcErr != nil {
			return respond(req, nil, rpcErr)
		}
		result, err = s.handler.CancelTask(ctx, &params)

	default:
		err = a2a.NewMethodNotFoundError(req.Method)
	}

	return respond(req, result, err)
}

// respond builds the response, or logs and drops it for notifications.
func respond(req *a2a.JSONRPCRequest, result any, err error) *a2a.JSONRPCResponse {
	if req.ID == nil {
		if err != nil {
			slog.Warn("Notification failed", "method", req.Method, "error", err)
		} else {
			slog.Debug("Processed notification", "method", req.Method)
		}
		return nil
	}
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	return &a2a.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// DecodeRequest parses and validates a single JSON-RPC envelope. The
// returned request may be non-nil alongside an error so the id can be echoed.
func DecodeRequest(body []byte) (*a2a.JSONRPCRequest, *a2a.JSONRPCError) {
	var req a2a.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, a2a.NewJSONParseError(err.Error())
	}
	if req.JSONRPC != "2.0" {
		return &req, a2a.NewInvalidRequestError("jsonrpc must be '2.0'")
	}
	if req.Method == "" {
		return &req, a2a.NewInvalidRequestError("method is required")
	}
	switch req.ID.(type) {
	case nil, string, float64:
	default:
		return &a2a.JSONRPCRequest{JSONRPC: req.JSONRPC, Method: req.Method}, a2a.NewInvalidRequestError("id must be a string or number")
	}
	return &req, nil
}

// paramsValidator is implemented by params types that check themselves.
type paramsValidator interface {
	Validate() error
}

// DecodeParams decodes raw params into v and runs its validation.
func DecodeParams(raw json.RawMessage, v any) *a2a.JSONRPCError {
	if len(raw) == 0 {
		return a2a.NewInvalidParamsError("params are required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return a2a.NewInvalidParamsError(err.Error())
	}
	if pv, ok := v.(paramsValidator); ok {
		if err := pv.Validate(); err != nil {
			return a2a.NewInvalidParamsError(err.Error())
		}
	}
	return nil
}

// ToJSONRPCError converts any error into the JSON-RPC error object sent on the wire.
func ToJSONRPCError(err error) *a2a.JSONRPCError {
	var rpcErr *a2a.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return a2a.NewInternalError(err.Error())
}

// NewErrorResponse wraps err in a response envelope.
func NewErrorResponse(id any, err error) *a2a.JSONRPCResponse {
	return &a2a.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   ToJSONRPCError(err),
	}
}

// WriteResponse encodes a unary response. JSON-RPC errors still use HTTP 200.
func WriteResponse(w http.ResponseWriter, resp *a2a.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func isBatch(body []byte) bool {
	for _, c := range body {
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		return c == '['
	}
	return false
}
