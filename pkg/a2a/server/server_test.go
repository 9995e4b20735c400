package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a/executor"
	"github.com/agent-protocol/a2a-delegation/pkg/agents"
	"github.com/agent-protocol/a2a-delegation/pkg/api"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
	"github.com/agent-protocol/a2a-delegation/pkg/llm"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
)

type testAgent struct {
	server *A2AServer
	url    string
	engine *llm.ScriptedEngine
}

// startAgent serves a reporting agent driven by a scripted engine.
func startAgent(t *testing.T, cfg Config, steps ...llm.ScriptStep) *testAgent {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + l.Addr().String()

	def, err := agents.NewReportingAgent(url, time.Second)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	engine := llm.NewScriptedEngine(steps...)
	orch, err := agents.NewOrchestrator(def.Card.Name, def.Instruction, engine, def.Registry, agents.OrchestratorConfig{}, metrics)
	require.NoError(t, err)
	store := tasks.NewStore(tasks.Config{}, nil)
	exec := executor.New(orch, store, executor.Config{TurnTimeout: 5 * time.Second}, metrics)

	srv, err := NewA2AServer(cfg, Options{
		Card:     def.Card,
		Executor: exec,
		Store:    store,
		Gatherer: registry,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(srv.Handler())
	ts.Listener.Close()
	ts.Listener = l
	ts.Start()
	t.Cleanup(ts.Close)

	return &testAgent{server: srv, url: url, engine: engine}
}

func summaryThenDone() []llm.ScriptStep {
	return []llm.ScriptStep{
		llm.Call("format_conversion_summary", map[string]any{"conversion_result": map[string]any{"from": "USD", "to": "EUR", "rate": 0.92}}),
		llm.Reply(&core.FinalAnswer{Status: a2a.TaskStateCompleted, Message: "Conversion Summary: 1 USD = 0.92 EUR"}),
	}
}

func dial(t *testing.T, url string) *a2a.Client {
	t.Helper()
	card, err := a2a.NewAgentCardResolver(nil).Resolve(context.Background(), url)
	require.NoError(t, err)
	client, err := a2a.NewClient(card, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewA2AServerValidation(t *testing.T) {
	_, err := NewA2AServer(Config{}, Options{})
	assert.Error(t, err)

	_, err = NewA2AServer(Config{}, Options{Card: &a2a.AgentCard{Name: "broken"}})
	assert.Error(t, err)

	_, err = NewA2AServer(Config{}, Options{Card: agents.ReportingCard("http://localhost:5002")})
	assert.Error(t, err, "an executor is required")
}

func TestAgentCardAndHealth(t *testing.T) {
	agent := startAgent(t, Config{})

	resp, err := http.Get(agent.url + a2a.AgentCardPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var card a2a.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.Equal(t, "Reporting Agent", card.Name)
	assert.Equal(t, agent.url, card.URL)
	assert.True(t, card.Capabilities.Streaming)
	assert.Same(t, agent.server.AgentCard(), agent.server.card)

	resp, err = http.Get(agent.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "Reporting Agent", health["agent"])
}

func TestCORS(t *testing.T) {
	agent := startAgent(t, Config{AllowOrigins: []string{"http://dashboard.local"}})

	req, err := http.NewRequest(http.MethodGet, agent.url+a2a.AgentCardPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://elsewhere.local")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	preflight, err := http.NewRequest(http.MethodOptions, agent.url+"/", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "http://dashboard.local")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err = http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSendAndGetOverJSONRPC(t *testing.T) {
	agent := startAgent(t, Config{}, summaryThenDone()...)
	client := dial(t, agent.url)
	ctx := context.Background()

	task, err := client.SendMessage(ctx, &a2a.MessageSendParams{
		Message: a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("summarise USD to EUR at 0.92")),
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "Conversion Summary: 1 USD = 0.92 EUR", task.ArtifactText())

	one := 1
	got, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: task.ID, HistoryLength: &one})
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Len(t, got.History, 1)

	_, err = client.GetTask(ctx, &a2a.TaskQueryParams{ID: "missing"})
	var perr *a2a.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.NotNil(t, perr.RemoteError)
	assert.Equal(t, a2a.CodeTaskNotFound, perr.RemoteError.Code)

	_, err = client.CancelTask(ctx, &a2a.TaskIDParams{ID: task.ID})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, a2a.CodeTaskNotResumable, perr.RemoteError.Code)
}

func TestStreamOverSSE(t *testing.T) {
	agent := startAgent(t, Config{}, summaryThenDone()...)
	client := dial(t, agent.url)

	stream, err := client.SendMessageStreaming(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("summarise")),
	})
	require.NoError(t, err)
	defer stream.Close()

	var kinds []string
	final, err := stream.Drain(func(event a2a.StreamEvent) {
		kinds = append(kinds, event.EventKind())
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
	assert.Equal(t, []string{a2a.KindStatusUpdate, a2a.KindArtifactUpdate, a2a.KindStatusUpdate}, kinds)
}

func TestMetricsEndpoint(t *testing.T) {
	agent := startAgent(t, Config{}, summaryThenDone()...)
	client := dial(t, agent.url)

	_, err := client.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("summarise")),
	})
	require.NoError(t, err)
	_, err = client.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "missing"})
	require.Error(t, err)

	scrape := func() string {
		resp, err := http.Get(agent.url + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	// The turn counter is bumped after the turn is released.
	require.Eventually(t, func() bool {
		return strings.Contains(scrape(), `a2a_task_turns_total{agent="Reporting Agent",reason="",state="completed"} 1`)
	}, 2*time.Second, 20*time.Millisecond)

	text := scrape()
	assert.Contains(t, text, `a2a_requests_total{agent="Reporting Agent",method="message/send",outcome="ok"} 1`)
	assert.Contains(t, text, `a2a_requests_total{agent="Reporting Agent",method="tasks/get",outcome="-32001"} 1`)
	assert.Contains(t, text, `a2a_tool_executions_total{kind="compute",status="ok",tool="format_conversion_summary"} 1`)
}

func TestInspectionAPIMounted(t *testing.T) {
	agent := startAgent(t, Config{}, summaryThenDone()...)
	client := dial(t, agent.url)

	task, err := client.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("summarise")),
	})
	require.NoError(t, err)

	resp, err := http.Get(agent.url + "/api/tasks/" + task.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var trace api.TaskTrace
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trace))
	assert.Equal(t, task.ID, trace.Task.ID)
	require.Len(t, trace.Steps, 1)
	assert.Equal(t, "format_conversion_summary", trace.Steps[0].Call.Name)
}

func TestWrongMethodOnRoot(t *testing.T) {
	agent := startAgent(t, Config{})

	resp, err := http.Post(agent.url+"/", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tasks/resubscribe","params":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Error *a2a.JSONRPCError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, a2a.CodeMethodNotFound, body.Error.Code)
}

func TestServeShutsDownGracefully(t *testing.T) {
	def, err := agents.NewReportingAgent("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)
	orch, err := agents.NewOrchestrator(def.Card.Name, def.Instruction, llm.NewScriptedEngine(), def.Registry, agents.OrchestratorConfig{}, nil)
	require.NoError(t, err)
	exec := executor.New(orch, tasks.NewStore(tasks.Config{}, nil), executor.Config{}, nil)

	srv, err := NewA2AServer(Config{ShutdownTimeout: time.Second}, Options{Card: def.Card, Executor: exec})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "-32005", outcome(a2a.NewTaskBusyError("t1")))
	assert.Equal(t, "-32603", outcome(io.ErrUnexpectedEOF))
}
