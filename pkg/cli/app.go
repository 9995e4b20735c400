package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/agent-protocol/a2a-delegation/pkg/config"
	"github.com/agent-protocol/a2a-delegation/pkg/observability"
)

// Version information - will be set during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const configKey = "config"

// NewApp creates and configures the CLI application
func NewApp() *cli.App {
	return &cli.App{
		Name:    "a2a",
		Usage:   "Currency and reporting agents speaking the A2A protocol",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime),
		Commands: []*cli.Command{
			serveCommand(),
			cardCommand(),
			sendCommand(),
			chatCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"A2A_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text or json)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if level := c.String("log-level"); level != "" {
				cfg.Logging.Level = level
			}
			if c.Bool("verbose") {
				cfg.Logging.Level = "debug"
			}
			if format := c.String("log-format"); format != "" {
				cfg.Logging.Format = format
			}
			observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[configKey] = cfg
			return nil
		},
	}
}

// loadedConfig returns the configuration loaded by the app's Before hook.
func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// clientFlags are shared by commands that talk to a remote agent.
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Value: defaultClientTimeout,
			Usage: "Timeout for each call to the agent",
		},
	}
}

// Helper function to validate required args
func requireArgs(c *cli.Context, names ...string) error {
	if c.NArg() < len(names) {
		return fmt.Errorf("missing required argument %s", names[c.NArg()])
	}
	return nil
}
