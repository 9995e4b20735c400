// Package server exposes one agent over HTTP: its card, the JSON-RPC
// endpoint, task inspection, metrics and health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/agent-protocol/a2a-delegation/internal/jsonrpc2"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a/executor"
	"github.com/agent-protocol/a2a-delegation/pkg/api"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
)

// Config contains configuration for the A2A server.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowOrigins    []string      `yaml:"allow_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// A2AServer wraps a single local agent as an A2A endpoint.
type A2AServer struct {
	config   Config
	card     *a2a.AgentCard
	executor *executor.Executor
	engine   *gin.Engine
	handler  http.Handler
}

// Options are the collaborators of an A2AServer.
type Options struct {
	Card     *a2a.AgentCard
	Executor *executor.Executor
	Store    *tasks.Store
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Metrics  *observability.Metrics
}

// NewA2AServer creates a new A2A server.
func NewA2AServer(config Config, opts Options) (*A2AServer, error) {
	if opts.Card == nil {
		return nil, errors.New("agent card is required")
	}
	if err := a2a.ValidateAgentCard(opts.Card); err != nil {
		return nil, fmt.Errorf("invalid agent card: %w", err)
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &A2AServer{
		config:   config,
		card:     opts.Card,
		executor: opts.Executor,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Card.Name))

	engine.GET(a2a.AgentCardPath, s.handleAgentCard)
	rpc := jsonrpc2.NewServer(opts.Executor).Observe(func(method string, err error, d time.Duration) {
		opts.Metrics.ObserveRequest(opts.Card.Name, method, outcome(err), d)
	})
	engine.POST("/", gin.WrapH(rpc))
	engine.GET("/health", s.handleHealth)
	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if opts.Store != nil {
		inspect := api.NewServer(api.ServerConfig{AllowOrigins: config.AllowOrigins}, opts.Store, opts.Executor, opts.Metrics)
		engine.Any("/api/*path", gin.WrapH(http.StripPrefix("/api", inspect)))
	}
	s.engine = engine

	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(engine)
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *A2AServer) Handler() http.Handler {
	return s.handler
}

// AgentCard returns the card the server publishes.
func (s *A2AServer) AgentCard() *a2a.AgentCard {
	return s.card
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully: in-flight turns are canceled and waited for.
func (s *A2AServer) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting A2A server", "agent", s.card.Name, "address", l.Addr().String(), "url", s.card.URL)
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	slog.Info("Shutting down A2A server", "agent", s.card.Name)
	if err := s.executor.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Turns still running at shutdown", "agent", s.card.Name, "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down %s: %w", s.card.Name, err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *A2AServer) ListenAndServe(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	return s.Serve(ctx, l)
}

func (s *A2AServer) handleAgentCard(c *gin.Context) {
	c.JSON(http.StatusOK, s.card)
}

func (s *A2AServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"agent":  s.card.Name,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// outcome labels a request by its JSON-RPC error code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strconv.Itoa(jsonrpc2.ToJSONRPCError(err).Code)
}

// requestLogger logs one line per request with log/slog.
func requestLogger(agent string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"agent", agent,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
