package a2a

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const maxSSELine = 1 << 20

// EventStream is the lazy, finite event sequence of a message/stream call.
// It yields events until the terminal one, then io.EOF. It cannot be
// restarted. Recv is not safe for concurrent use; Close may be called from
// any goroutine and makes a blocked Recv return io.EOF.
type EventStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	finish  func(error)

	mu       sync.Mutex
	terminal bool
	closed   bool
	err      error

	closeOnce sync.Once
}

func newEventStream(ctx context.Context, body io.ReadCloser, finish func(error)) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &EventStream{
		ctx:     ctx,
		body:    body,
		scanner: scanner,
		finish:  finish,
	}
}

// Recv returns the next event. After the terminal event it returns io.EOF.
// An event after the terminal one, or the stream ending before it, is a
// *ProtocolError. Transport failures are *TransportError.
func (s *EventStream) Recv() (StreamEvent, error) {
	s.mu.Lock()
	err, terminal := s.err, s.terminal
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := s.nextData()
	if s.isClosed() {
		// Whatever the read produced, the caller asked to stop.
		return nil, s.fail(io.EOF)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if terminal {
				return nil, s.fail(io.EOF)
			}
			return nil, s.fail(&ProtocolError{Reason: "stream ended before a terminal event"})
		}
		return nil, s.fail(&TransportError{URL: "event stream", Err: contextErr(s.ctx, err)})
	}

	if terminal {
		return nil, s.fail(&ProtocolError{Reason: "event received after terminal event"})
	}

	var frame rawResponse
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return nil, s.fail(&ProtocolError{Reason: fmt.Sprintf("undecodable stream frame: %v", err)})
	}
	if frame.Error != nil {
		return nil, s.fail(&ProtocolError{Reason: "remote stream failed", RemoteError: frame.Error})
	}

	event, err := DecodeStreamEvent(frame.Result)
	if err != nil {
		return nil, s.fail(&ProtocolError{Reason: err.Error()})
	}
	if event.IsFinal() {
		s.mu.Lock()
		s.terminal = true
		s.mu.Unlock()
	}
	return event, nil
}

// Close stops consumption early and releases the connection. Every later
// Recv, including one already blocked on the connection, returns io.EOF.
func (s *EventStream) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.err == nil {
		s.err = io.EOF
	}
	s.mu.Unlock()

	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.finish(nil)
	})
	return err
}

// Drain reads the stream to its end and returns the terminal event.
func (s *EventStream) Drain(fn func(StreamEvent)) (*TaskStatusUpdateEvent, error) {
	var last *TaskStatusUpdateEvent
	for {
		event, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fn(event)
		}
		if status, ok := event.(*TaskStatusUpdateEvent); ok && status.Final {
			last = status
		}
	}
}

func (s *EventStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fail records the first error of the stream and returns it.
func (s *EventStream) fail(err error) error {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	err = s.err
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.body.Close()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
		} else {
			s.finish(err)
		}
	})
	return err
}

// nextData reads SSE lines until a blank line completes an event with data.
// Comment lines and other fields are ignored.
func (s *EventStream) nextData() (string, error) {
	var data []string
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
