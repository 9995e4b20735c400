package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// EventWriter delivers stream frames to one caller. Implementations exist
// for Server-Sent Events and WebSocket.
type EventWriter interface {
	WriteEvent(event a2a.StreamEvent) error
	WriteError(err *a2a.JSONRPCError) error
}

// Pump copies events to w in order until the channel closes. If ctx ends
// first it keeps draining so the producer is never blocked.
func Pump(ctx context.Context, events <-chan a2a.StreamEvent, w EventWriter) error {
	var writeErr error
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return writeErr
			}
			if writeErr != nil {
				continue
			}
			writeErr = w.WriteEvent(event)
		case <-ctx.Done():
			for range events {
			}
			return ctx.Err()
		}
	}
}

// StreamWriter writes JSON-RPC responses as Server-Sent Events.
type StreamWriter struct {
	w      http.ResponseWriter
	id     any
	mu     sync.Mutex
	closed bool
}

// NewStreamWriter creates a new StreamWriter
func NewStreamWriter(w http.ResponseWriter, id any) *StreamWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return &StreamWriter{
		w:  w,
		id: id,
	}
}

// WriteEvent sends one event frame. Writing stops after a final event.
func (sw *StreamWriter) WriteEvent(event a2a.StreamEvent) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	if event.IsFinal() {
		sw.closed = true
	}

	return sw.write(&a2a.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      sw.id,
		Result:  event,
	})
}

// WriteError sends an error response to the client and closes the stream.
func (sw *StreamWriter) WriteError(err *a2a.JSONRPCError) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	sw.closed = true

	return sw.write(&a2a.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      sw.id,
		Error:   err,
	})
}

func (sw *StreamWriter) write(response *a2a.JSONRPCResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := sw.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// Close finalizes the stream
func (sw *StreamWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.closed = true
	return nil
}
