package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/ui"
)

func newAskCommand(opts *options) *cobra.Command {
	var agent string
	var plain bool

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the relay's AI agent one question",
		Long: `ask joins the room, turns AI mode on (which starts a fresh conversation),
sends one message and prints the reply. It occupies one of the two room slots
while it waits.`,
		Example: `  callroom ask "how do I share my screen?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			reply, err := ask(ctx, opts.server, question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if plain {
				fmt.Fprintln(out, reply)
				return nil
			}
			fmt.Fprintln(out, ui.AgentReply(agent, reply))
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "AI", "label for the agent's reply")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the reply without styling")
	return cmd
}

func ask(ctx context.Context, server, question string) (string, error) {
	wsURL, err := client.WebSocketURL(server)
	if err != nil {
		return "", err
	}
	c, err := client.Dial(ctx, wsURL)
	if err != nil {
		return "", err
	}
	defer c.Close()

	if err := c.SetAIMode(true); err != nil {
		return "", err
	}
	env, err := c.WaitFor(ctx, protocol.KindAIModeStatus, protocol.KindError)
	if err != nil {
		return "", fmt.Errorf("waiting for AI mode: %w", err)
	}
	if env.Kind() == protocol.KindError {
		return "", errors.New(env.Message)
	}
	if env.Enabled == nil || !*env.Enabled {
		if env.Error != "" {
			return "", errors.New(env.Error)
		}
		return "", errors.New("relay refused AI mode")
	}

	if err := c.SendAIMessage(question); err != nil {
		return "", err
	}
	env, err = c.WaitFor(ctx, protocol.KindAIResponse, protocol.KindAIError, protocol.KindError)
	if err != nil {
		return "", fmt.Errorf("waiting for reply: %w", err)
	}
	switch env.Kind() {
	case protocol.KindAIError:
		return "", errors.New(env.Error)
	case protocol.KindError:
		return "", errors.New(env.Message)
	}
	return env.Message, nil
}
