package a2a

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind discriminators used on the wire.
const (
	KindTask           = "task"
	KindMessage        = "message"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"

	PartKindText = "text"
	PartKindData = "data"
)

// Well-known JSON-RPC method names.
const (
	MethodSendMessage   = "message/send"
	MethodStreamMessage = "message/stream"
	MethodGetTask       = "tasks/get"
	MethodCancelTask    = "tasks/cancel"
)

// AgentCardPath is the well-known path an agent publishes its card under.
const AgentCardPath = "/.well-known/agent.json"

// AgentAuthentication declares the authentication schemes an agent accepts.
// Nothing in this module verifies them.
type AgentAuthentication struct {
	Schemes []string `json:"schemes"`
}

// AgentCapabilities defines the capabilities of an agent.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentProvider provides information about the agent's provider.
type AgentProvider struct {
	Organization string `json:"organization" validate:"required"`
	URL          string `json:"url,omitempty"`
}

// AgentSkill describes a specific skill or capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCard provides metadata about an agent. A card is pure data: decoding
// and re-encoding it yields the same bytes.
type AgentCard struct {
	Name               string               `json:"name" validate:"required"`
	Description        string               `json:"description,omitempty"`
	URL                string               `json:"url" validate:"required,url"`
	Provider           *AgentProvider       `json:"provider,omitempty"`
	Version            string               `json:"version" validate:"required"`
	DocumentationURL   string               `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities    `json:"capabilities"`
	Authentication     *AgentAuthentication `json:"authentication,omitempty"`
	DefaultInputModes  []string             `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string             `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill         `json:"skills" validate:"required,min=1,dive"`
}

// Part is one piece of a message or artifact. It is a tagged union keyed by
// Kind: text parts carry Text, data parts carry Data.
type Part struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON rejects unknown kinds and parts missing their payload.
func (p *Part) UnmarshalJSON(data []byte) error {
	type partAlias Part
	var raw struct {
		partAlias
		Text *string `json:"text,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case PartKindText:
		if raw.Text == nil {
			return fmt.Errorf("text part missing 'text' field")
		}
	case PartKindData:
		if raw.Data == nil {
			return fmt.Errorf("data part missing 'data' field")
		}
	case "":
		return fmt.Errorf("part missing 'kind' field")
	default:
		return fmt.Errorf("unknown part kind: %s", raw.Kind)
	}

	*p = Part(raw.partAlias)
	if raw.Text != nil {
		p.Text = *raw.Text
	}
	return nil
}

// MarshalJSON always writes the payload of text and data parts, even when it
// is empty, so every encoded part decodes again.
func (p Part) MarshalJSON() ([]byte, error) {
	type partAlias Part
	switch p.Kind {
	case PartKindText:
		return json.Marshal(struct {
			partAlias
			Text string `json:"text"`
		}{partAlias(p), p.Text})
	case PartKindData:
		data := p.Data
		if data == nil {
			data = map[string]any{}
		}
		return json.Marshal(struct {
			partAlias
			Data map[string]any `json:"data"`
		}{partAlias(p), data})
	}
	return json.Marshal(partAlias(p))
}

// NewTextPart returns a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewDataPart returns a structured data part.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one conversational turn. Messages are never mutated once
// appended to a task's history.
type Message struct {
	Kind      string         `json:"kind"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message with a fresh message ID.
func NewMessage(role Role, parts ...Part) Message {
	return Message{
		Kind:      KindMessage,
		Role:      role,
		Parts:     parts,
		MessageID: NewID(),
	}
}

// TextContent concatenates all text parts of the message.
func (m *Message) TextContent() string {
	if m == nil {
		return ""
	}
	return PartsText(m.Parts)
}

// Validate checks the fields a dispatcher needs before accepting a message.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("messageId is required in message")
	}
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must contain at least one part")
	}
	return nil
}

// PartsText joins the text of all text parts with newlines.
func PartsText(parts []Part) string {
	var texts []string
	for _, part := range parts {
		if part.Kind == PartKindText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Artifact is a named bundle of output produced when a task completes.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Task represents the state and data associated with an agent task.
type Task struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ArtifactText concatenates the text of every artifact attached to the task.
func (t *Task) ArtifactText() string {
	var sb strings.Builder
	for _, artifact := range t.Artifacts {
		sb.WriteString(PartsText(artifact.Parts))
	}
	return sb.String()
}

// MessageSendConfiguration tunes a message/send or message/stream call.
type MessageSendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	HistoryLength       *int     `json:"historyLength,omitempty"`
	Blocking            bool     `json:"blocking,omitempty"`
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message       Message                   `json:"message"`
	SessionID     string                    `json:"sessionId,omitempty"`
	Configuration *MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// Validate checks the embedded message and the configuration.
func (p *MessageSendParams) Validate() error {
	if p.Configuration != nil && p.Configuration.HistoryLength != nil && *p.Configuration.HistoryLength < 0 {
		return fmt.Errorf("historyLength must not be negative")
	}
	return p.Message.Validate()
}

// TaskIDParams provides parameters containing just a task ID.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (p *TaskIDParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task id is required")
	}
	return nil
}

// TaskQueryParams provides parameters for querying a task, including history length.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (p *TaskQueryParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if p.HistoryLength != nil && *p.HistoryLength < 0 {
		return fmt.Errorf("historyLength must not be negative")
	}
	return nil
}

// JSONRPCRequest is the request envelope. Params stay raw until the method is known.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is the response envelope.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// rawResponse is the client-side view of a response; the result stays raw so
// the caller picks the concrete type.
type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}
