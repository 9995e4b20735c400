package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

const defaultClientTimeout = 2 * time.Minute

// cardCommand creates the 'card' command
func cardCommand() *cli.Command {
	return &cli.Command{
		Name:      "card",
		Usage:     "Fetches and prints an agent card",
		ArgsUsage: "AGENT_URL",
		Flags:     clientFlags(),
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "AGENT_URL"); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			card, err := a2a.NewAgentCardResolver(nil).Resolve(ctx, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, card)
		},
	}
}

// sendCommand creates the 'send' command
func sendCommand() *cli.Command {
	flags := append(clientFlags(),
		&cli.BoolFlag{
			Name:  "stream",
			Usage: "Use message/stream and print every event",
		},
		&cli.StringFlag{
			Name:  "task-id",
			Usage: "Continue an input-required task",
		},
		&cli.StringFlag{
			Name:  "context-id",
			Usage: "Context the message belongs to",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID used as the context of a new task",
		},
		&cli.IntFlag{
			Name:  "history-length",
			Value: -1,
			Usage: "Number of history messages to return (-1 for all)",
		},
	)

	return &cli.Command{
		Name:      "send",
		Usage:     "Sends one message to an agent",
		ArgsUsage: "AGENT_URL TEXT",
		Flags:     flags,
		Action:    sendCommandAction,
	}
}

func sendCommandAction(c *cli.Context) error {
	if err := requireArgs(c, "AGENT_URL", "TEXT"); err != nil {
		return err
	}

	client, err := dialAgent(c.Context, c.Args().Get(0), c.Duration("timeout"))
	if err != nil {
		return err
	}
	defer client.Close()

	msg := a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(c.Args().Get(1)))
	msg.TaskID = c.String("task-id")
	msg.ContextID = c.String("context-id")
	params := &a2a.MessageSendParams{
		Message:   msg,
		SessionID: c.String("session-id"),
	}
	if n := c.Int("history-length"); n >= 0 {
		params.Configuration = &a2a.MessageSendConfiguration{HistoryLength: &n}
	}

	if !c.Bool("stream") {
		task, err := client.SendMessage(c.Context, params)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, task)
	}

	stream, err := client.SendMessageStreaming(c.Context, params)
	if err != nil {
		return err
	}
	defer stream.Close()

	var writeErr error
	final, err := stream.Drain(func(event a2a.StreamEvent) {
		if writeErr == nil {
			writeErr = printJSON(c.App.Writer, event)
		}
	})
	if err != nil {
		return err
	}
	if final == nil {
		return fmt.Errorf("stream ended without a final status")
	}
	return writeErr
}

// dialAgent resolves the card at baseURL and returns a client bound to it.
func dialAgent(ctx context.Context, baseURL string, timeout time.Duration) (*a2a.Client, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	card, err := a2a.NewAgentCardResolver(nil).Resolve(resolveCtx, baseURL)
	if err != nil {
		return nil, err
	}

	clientCfg := a2a.DefaultClientConfig()
	clientCfg.Timeout = timeout
	return a2a.NewClient(card, clientCfg)
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
