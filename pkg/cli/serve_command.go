package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a/executor"
	"github.com/agent-protocol/a2a-delegation/pkg/a2a/server"
	"github.com/agent-protocol/a2a-delegation/pkg/agents"
	"github.com/agent-protocol/a2a-delegation/pkg/config"
	"github.com/agent-protocol/a2a-delegation/pkg/core"
	"github.com/agent-protocol/a2a-delegation/pkg/llm"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
	"github.com/agent-protocol/a2a-delegation/pkg/tasks"
)

const (
	agentCurrency  = "currency"
	agentReporting = "reporting"
	agentAll       = "all"
)

// serveCommand creates the 'serve' command
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "Serves the currency agent, the reporting agent or both",
		ArgsUsage: "currency|reporting|all",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind the server to",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to bind the server to (single agent only)",
			},
			&cli.StringFlag{
				Name:  "reporting-url",
				Usage: "Base URL of the reporting agent the currency agent delegates to",
			},
			&cli.StringSliceFlag{
				Name:  "allow-origins",
				Usage: "Origins allowed for CORS and WebSocket streaming",
			},
			&cli.StringFlag{
				Name:  "model-source",
				Usage: "Reasoning engine: google, openai or ollama",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model name for the reasoning engine",
			},
		},
		Action: serveCommandAction,
	}
}

func serveCommandAction(c *cli.Context) error {
	which := c.Args().First()
	if which == "" {
		which = agentAll
	}
	switch which {
	case agentCurrency, agentReporting, agentAll:
	default:
		return fmt.Errorf("unknown agent %q: expected currency, reporting or all", which)
	}

	cfg := loadedConfig(c)
	if err := applyServeFlags(c, cfg, which); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing, Version, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	engine, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating reasoning engine: %w", err)
	}
	defer engine.Close()
	slog.Info("Reasoning engine ready", "engine", engine.Name(), "model", cfg.LLM.Model)

	var servers []*server.A2AServer
	if which == agentReporting || which == agentAll {
		def, err := agents.NewReportingAgent(cfg.Reporting.PublicURL(), cfg.ToolTimeout)
		if err != nil {
			return err
		}
		srv, err := newAgentServer(cfg, cfg.Reporting, def, engine, metrics, registry)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}
	if which == agentCurrency || which == agentAll {
		def, err := agents.NewCurrencyAgent(agents.CurrencyOptions{
			URL:               cfg.Currency.PublicURL(),
			RatesURL:          cfg.RatesURL,
			ReportingAgentURL: cfg.Reporting.PublicURL(),
			ToolTimeout:       cfg.ToolTimeout,
			DelegationTimeout: cfg.DelegationTimeout,
		})
		if err != nil {
			return err
		}
		srv, err := newAgentServer(cfg, cfg.Currency, def, engine, metrics, registry)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}
	return g.Wait()
}

// newAgentServer assembles the store, orchestrator, executor and HTTP server
// of one agent.
func newAgentServer(cfg *config.Config, agentCfg config.AgentConfig, def *agents.Definition, engine core.ReasoningEngine, metrics *observability.Metrics, registry *prometheus.Registry) (*server.A2AServer, error) {
	name := def.Card.Name
	store := tasks.NewStore(cfg.Store, func(task *tasks.Task) {
		slog.Debug("Task evicted", "agent", name, "task_id", task.ID())
	})

	orchestrator, err := agents.NewOrchestrator(name, def.Instruction, engine, def.Registry, cfg.Orchestrator, metrics)
	if err != nil {
		return nil, fmt.Errorf("creating %s orchestrator: %w", name, err)
	}

	exec := executor.New(orchestrator, store, cfg.Executor, metrics)
	return server.NewA2AServer(agentCfg.Config, server.Options{
		Card:     def.Card,
		Executor: exec,
		Store:    store,
		Gatherer: registry,
		Metrics:  metrics,
	})
}

// applyServeFlags lets command-line flags override the loaded configuration.
func applyServeFlags(c *cli.Context, cfg *config.Config, which string) error {
	targets := []*config.AgentConfig{&cfg.Currency, &cfg.Reporting}
	switch which {
	case agentCurrency:
		targets = targets[:1]
	case agentReporting:
		targets = targets[1:]
	}

	if c.IsSet("port") {
		if len(targets) != 1 {
			return fmt.Errorf("--port applies to a single agent; set ports in the config file for 'serve all'")
		}
		targets[0].Port = c.Int("port")
	}
	for _, t := range targets {
		if c.IsSet("host") {
			t.Host = c.String("host")
		}
		if c.IsSet("allow-origins") {
			t.AllowOrigins = c.StringSlice("allow-origins")
		}
	}
	if c.IsSet("reporting-url") {
		cfg.Reporting.URL = c.String("reporting-url")
	}
	if c.IsSet("model-source") {
		cfg.LLM.Source = c.String("model-source")
	}
	if c.IsSet("model") {
		cfg.LLM.Model = c.String("model")
	}
	return cfg.Validate()
}
