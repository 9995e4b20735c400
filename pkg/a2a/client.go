package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agent-protocol/a2a-delegation/pkg/a2a"

// ClientConfig holds configuration for the A2A client
type ClientConfig struct {
	// Timeout bounds each call. For streaming calls it bounds the whole stream.
	Timeout time.Duration
	// Custom HTTP client (optional)
	HTTPClient *http.Client
	// BaseURL overrides the URL advertised by the agent card.
	BaseURL string
	// Additional headers to include in requests
	Headers map[string]string
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 120 * time.Second,
		Headers: make(map[string]string),
	}
}

// Client is an A2A client bound to one resolved agent card.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	agentCard  *AgentCard
	baseURL    string
	tracer     trace.Tracer
}

// NewClient creates a new A2A client
func NewClient(agentCard *AgentCard, config *ClientConfig) (*Client, error) {
	if agentCard == nil {
		return nil, fmt.Errorf("agent card cannot be nil")
	}

	if config == nil {
		config = DefaultClientConfig()
	}

	// Deadlines come from the request context so streams are not cut by
	// http.Client.Timeout.
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = agentCard.URL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("agent card %q has no URL", agentCard.Name)
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		agentCard:  agentCard,
		baseURL:    baseURL,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// AgentCard returns the card the client was built from.
func (c *Client) AgentCard() *AgentCard {
	return c.agentCard
}

// SendMessage sends message/send and blocks until the remote returns the
// task for this turn.
func (c *Client) SendMessage(ctx context.Context, params *MessageSendParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodSendMessage, params, &task); err != nil {
		return nil, err
	}
	if err := validateTaskResult(&task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask retrieves task details by ID
func (c *Client) GetTask(ctx context.Context, params *TaskQueryParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodGetTask, params, &task); err != nil {
		return nil, err
	}
	if err := validateTaskResult(&task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a task by ID
func (c *Client) CancelTask(ctx context.Context, params *TaskIDParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodCancelTask, params, &task); err != nil {
		return nil, err
	}
	if err := validateTaskResult(&task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendMessageStreaming sends message/stream and returns the event sequence.
// The caller must Close the stream unless it is drained to io.EOF.
func (c *Client) SendMessageStreaming(ctx context.Context, params *MessageSendParams) (*EventStream, error) {
	ctx, cancel := c.withTimeout(ctx)
	ctx, span := c.tracer.Start(ctx, "a2a.client "+MethodStreamMessage, trace.WithSpanKind(trace.SpanKindClient))

	httpReq, err := c.newRequest(ctx, MethodStreamMessage, params)
	if err != nil {
		span.End()
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		endSpan(span, err)
		cancel()
		return nil, &TransportError{URL: c.baseURL, Err: contextErr(ctx, err)}
	}

	contentType := httpResp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		// A JSON-RPC error for a rejected stream comes back as a plain JSON body.
		defer httpResp.Body.Close()
		defer cancel()
		body, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			endSpan(span, readErr)
			return nil, &TransportError{URL: c.baseURL, Err: contextErr(ctx, readErr)}
		}
		perr := &ProtocolError{Reason: fmt.Sprintf("expected text/event-stream, got %q (status %d)", contentType, httpResp.StatusCode)}
		var envelope rawResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			perr = &ProtocolError{Reason: "remote rejected stream", RemoteError: envelope.Error}
		}
		endSpan(span, perr)
		return nil, perr
	}

	return newEventStream(ctx, httpResp.Body, func(err error) {
		endSpan(span, err)
		cancel()
	}), nil
}

// call performs one unary JSON-RPC round trip and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) (err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "a2a.client "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer func() { endSpan(span, err) }()

	httpReq, err := c.newRequest(ctx, method, params)
	if err != nil {
		return err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{URL: c.baseURL, Err: contextErr(ctx, err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &TransportError{URL: c.baseURL, Err: contextErr(ctx, err)}
	}

	var response rawResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("undecodable response (status %d): %v", httpResp.StatusCode, err)}
	}
	if response.JSONRPC != "2.0" {
		return &ProtocolError{Reason: fmt.Sprintf("unexpected jsonrpc version %q", response.JSONRPC)}
	}
	if response.Error != nil {
		return &ProtocolError{Reason: method + " failed", RemoteError: response.Error}
	}
	if len(response.Result) == 0 || string(response.Result) == "null" {
		return &ProtocolError{Reason: "response has neither result nor error"}
	}
	if err := json.Unmarshal(response.Result, out); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("undecodable result: %v", err)}
	}
	return nil
}

// newRequest builds the POST carrying a JSON-RPC envelope with a fresh id.
func (c *Client) newRequest(ctx context.Context, method string, params any) (*http.Request, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	requestID := NewID()
	reqBody, err := json.Marshal(&JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range c.config.Headers {
		httpReq.Header.Set(key, value)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.jsonrpc.request_id", requestID),
		attribute.String("a2a.agent", c.agentCard.Name),
	)
	slog.Debug("Sending A2A request", "method", method, "request_id", requestID, "url", c.baseURL)
	return httpReq, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// Close closes the client and cleans up resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// validateTaskResult rejects results that cannot be a task.
func validateTaskResult(task *Task) error {
	if task.ID == "" {
		return &ProtocolError{Reason: "task result has no id"}
	}
	if !task.Status.State.Valid() {
		return &ProtocolError{Reason: fmt.Sprintf("task result has unknown state %q", task.Status.State)}
	}
	return nil
}

// contextErr prefers the context's error so deadline expiry is reported as such.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
