package a2a

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCard(url string) *AgentCard {
	return &AgentCard{
		Name:        "Reporting Agent",
		Description: "Generates reports",
		URL:         url,
		Version:     "1.0.0",
		Provider:    &AgentProvider{Organization: "Example Org"},
		Capabilities: AgentCapabilities{
			Streaming: true,
		},
		Authentication:     &AgentAuthentication{Schemes: []string{"bearer"}},
		DefaultInputModes:  []string{"text", "text/plain"},
		DefaultOutputModes: []string{"text", "text/plain"},
		Skills: []AgentSkill{{
			ID:          "generate_report",
			Name:        "Report Generation",
			Description: "Builds currency conversion reports",
			Tags:        []string{"reports"},
			Examples:    []string{"Generate a report for USD to EUR"},
		}},
	}
}

func TestAgentCardRoundTrip(t *testing.T) {
	card := testCard("http://localhost:5002")

	first, err := json.Marshal(card)
	require.NoError(t, err)

	var decoded AgentCard
	require.NoError(t, json.Unmarshal(first, &decoded))
	if diff := cmp.Diff(card, &decoded); diff != "" {
		t.Errorf("card changed after decoding (-want +got):\n%s", diff)
	}

	second, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, string(first), string(second))
}

func TestValidateAgentCard(t *testing.T) {
	require.NoError(t, ValidateAgentCard(testCard("http://localhost:5002")))

	tests := []struct {
		name   string
		mutate func(*AgentCard)
	}{
		{"missing name", func(c *AgentCard) { c.Name = "" }},
		{"missing url", func(c *AgentCard) { c.URL = "" }},
		{"bad url", func(c *AgentCard) { c.URL = "not a url" }},
		{"missing version", func(c *AgentCard) { c.Version = "" }},
		{"no skills", func(c *AgentCard) { c.Skills = nil }},
		{"skill without id", func(c *AgentCard) { c.Skills[0].ID = "" }},
		{"provider without organization", func(c *AgentCard) { c.Provider.Organization = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := testCard("http://localhost:5002")
			tt.mutate(card)
			assert.Error(t, ValidateAgentCard(card))
		})
	}
	assert.Error(t, ValidateAgentCard(nil))
}

func TestPartDecoding(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Part
		wantErr bool
	}{
		{name: "text", input: `{"kind":"text","text":"hello"}`, want: Part{Kind: PartKindText, Text: "hello"}},
		{name: "empty text is still text", input: `{"kind":"text","text":""}`, want: Part{Kind: PartKindText}},
		{name: "data", input: `{"kind":"data","data":{"rate":0.79}}`, want: Part{Kind: PartKindData, Data: map[string]any{"rate": 0.79}}},
		{name: "text without text", input: `{"kind":"text"}`, wantErr: true},
		{name: "data without data", input: `{"kind":"data"}`, wantErr: true},
		{name: "missing kind", input: `{"text":"hello"}`, wantErr: true},
		{name: "unknown kind", input: `{"kind":"file","text":"x"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Part
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("part mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPartRoundTrip(t *testing.T) {
	for _, input := range []string{
		`{"kind":"text","text":""}`,
		`{"kind":"text","text":"hello"}`,
		`{"kind":"data","data":{}}`,
		`{"kind":"data","data":{"rate":0.79}}`,
	} {
		t.Run(input, func(t *testing.T) {
			var part Part
			require.NoError(t, json.Unmarshal([]byte(input), &part))

			out, err := json.Marshal(part)
			require.NoError(t, err)
			assert.JSONEq(t, input, string(out))

			var again Part
			require.NoError(t, json.Unmarshal(out, &again))
		})
	}

	out, err := json.Marshal(Part{Kind: PartKindData})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"data","data":{}}`, string(out))
}

func TestMessageWithEmptyTextSurvivesTask(t *testing.T) {
	task := &Task{
		Kind:    KindTask,
		ID:      "t1",
		Status:  TaskStatus{State: TaskStateCompleted},
		History: []Message{NewMessage(RoleUser, NewTextPart(""))},
	}
	body, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded.History, 1)
	assert.Equal(t, PartKindText, decoded.History[0].Parts[0].Kind)
}

func TestRemoteCardKeepsExplicitCapabilities(t *testing.T) {
	remote := `{"name":"Remote","url":"http://remote:9000","version":"2.1.0",` +
		`"capabilities":{"streaming":false,"pushNotifications":false,"stateTransitionHistory":true},` +
		`"skills":[{"id":"s1","name":"Skill"}]}`

	var card AgentCard
	require.NoError(t, json.Unmarshal([]byte(remote), &card))
	out, err := json.Marshal(&card)
	require.NoError(t, err)
	assert.JSONEq(t, remote, string(out))
}

func TestMessageSendParamsValidate(t *testing.T) {
	params := &MessageSendParams{Message: NewMessage(RoleUser, NewTextPart("hi"))}
	require.NoError(t, params.Validate())

	zero, negative := 0, -5
	params.Configuration = &MessageSendConfiguration{HistoryLength: &zero}
	require.NoError(t, params.Validate())

	params.Configuration.HistoryLength = &negative
	assert.EqualError(t, params.Validate(), "historyLength must not be negative")
}

func TestMessageHelpers(t *testing.T) {
	msg := NewMessage(RoleAgent, NewTextPart("first"), NewDataPart(map[string]any{"k": "v"}), NewTextPart("second"))
	assert.Equal(t, KindMessage, msg.Kind)
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "first\nsecond", msg.TextContent())
	require.NoError(t, msg.Validate())

	var nilMsg *Message
	assert.Empty(t, nilMsg.TextContent())

	other := NewMessage(RoleUser, NewTextPart("x"))
	assert.NotEqual(t, msg.MessageID, other.MessageID)
}

func TestTaskArtifactText(t *testing.T) {
	task := &Task{Artifacts: []Artifact{
		{ArtifactID: "a", Parts: []Part{NewTextPart("Report: ")}},
		{ArtifactID: "b", Parts: []Part{NewTextPart("1 USD = 0.79 GBP")}},
	}}
	assert.Equal(t, "Report: 1 USD = 0.79 GBP", task.ArtifactText())
}

func TestDecodeStreamEvent(t *testing.T) {
	status, err := DecodeStreamEvent([]byte(`{"kind":"status-update","taskId":"t1","contextId":"c1","status":{"state":"completed"},"final":true}`))
	require.NoError(t, err)
	require.IsType(t, &TaskStatusUpdateEvent{}, status)
	assert.True(t, status.IsFinal())
	assert.Equal(t, "t1", status.GetTaskID())

	artifact, err := DecodeStreamEvent([]byte(`{"kind":"artifact-update","taskId":"t1","contextId":"c1","artifact":{"artifactId":"a1","parts":[{"kind":"text","text":"r"}]},"lastChunk":true}`))
	require.NoError(t, err)
	require.IsType(t, &TaskArtifactUpdateEvent{}, artifact)
	assert.False(t, artifact.IsFinal())
	assert.True(t, artifact.(*TaskArtifactUpdateEvent).LastChunk)

	_, err = DecodeStreamEvent([]byte(`{"kind":"task"}`))
	assert.Error(t, err)
}
