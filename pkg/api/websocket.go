package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

const writeWait = 10 * time.Second

// wsWriter writes JSON-RPC response frames to a WebSocket. Writing stops
// after a final event or an error.
type wsWriter struct {
	conn   *websocket.Conn
	id     any
	mu     sync.Mutex
	closed bool
}

func newWSWriter(conn *websocket.Conn) *wsWriter {
	return &wsWriter{conn: conn}
}

func (w *wsWriter) WriteEvent(event a2a.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if event.IsFinal() {
		w.closed = true
	}
	return w.write(&a2a.JSONRPCResponse{JSONRPC: "2.0", ID: w.id, Result: event})
}

func (w *wsWriter) WriteError(err *a2a.JSONRPCError) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.write(&a2a.JSONRPCResponse{JSONRPC: "2.0", ID: w.id, Error: err})
}

func (w *wsWriter) write(resp *a2a.JSONRPCResponse) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(resp)
}

// close sends a normal closure frame.
func (w *wsWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
