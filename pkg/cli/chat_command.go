package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
)

// chatCommand creates the 'chat' command
func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Runs an interactive conversation with an agent",
		ArgsUsage: "AGENT_URL",
		Flags:     clientFlags(),
		Action:    chatCommandAction,
	}
}

func chatCommandAction(c *cli.Context) error {
	if err := requireArgs(c, "AGENT_URL"); err != nil {
		return err
	}

	client, err := dialAgent(c.Context, c.Args().First(), c.Duration("timeout"))
	if err != nil {
		return err
	}
	defer client.Close()

	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	return runConversation(c.Context, client, in, out)
}

// conversation tracks the task a chat is continuing, if any, and the
// context every turn belongs to.
type conversation struct {
	taskID    string
	contextID string
}

// runConversation reads one user message per line and streams each turn.
// An input-required answer keeps the task open for the next line.
func runConversation(ctx context.Context, client *a2a.Client, in io.Reader, out io.Writer) error {
	name := client.AgentCard().Name
	fmt.Fprintf(out, "Chatting with %s, type 'exit' to exit.\n", name)
	fmt.Fprint(out, "[user]: ")

	var conv conversation
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())

		if query == "" {
			fmt.Fprint(out, "[user]: ")
			continue
		}
		if query == "exit" {
			break
		}

		if err := conv.turn(ctx, client, query, out); err != nil {
			fmt.Fprintf(out, "Error talking to agent: %v\n", err)
		}
		fmt.Fprint(out, "[user]: ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

func (conv *conversation) turn(ctx context.Context, client *a2a.Client, query string, out io.Writer) error {
	msg := a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(query))
	msg.TaskID = conv.taskID
	msg.ContextID = conv.contextID

	stream, err := client.SendMessageStreaming(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return err
	}
	defer stream.Close()

	name := client.AgentCard().Name
	final, err := stream.Drain(func(event a2a.StreamEvent) {
		switch e := event.(type) {
		case *a2a.TaskStatusUpdateEvent:
			if text := e.Status.Message.TextContent(); text != "" {
				fmt.Fprintf(out, "[%s] (%s): %s\n", name, e.Status.State, text)
			}
		case *a2a.TaskArtifactUpdateEvent:
			if text := a2a.PartsText(e.Artifact.Parts); text != "" {
				fmt.Fprintf(out, "[%s] artifact %s:\n%s\n", name, e.Artifact.Name, text)
			}
		}
	})
	if err != nil {
		return err
	}
	if final == nil {
		return fmt.Errorf("stream ended without a final status")
	}

	conv.contextID = final.ContextID
	if final.Status.State == a2a.TaskStateInputRequired {
		conv.taskID = final.TaskID
	} else {
		conv.taskID = ""
	}
	return nil
}
