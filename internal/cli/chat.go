package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/ui"
)

func newChatCommand(opts *options) *cobra.Command {
	var agent string
	var aiOnStart bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat with the relay's AI agent",
		Example: `  callroom chat --ai
  callroom chat --server http://192.168.1.20:3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := client.WebSocketURL(opts.server)
			if err != nil {
				return err
			}

			dialCtx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			c, err := client.Dial(dialCtx, wsURL)
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			if aiOnStart {
				if err := c.SetAIMode(true); err != nil {
					return err
				}
			}

			p := tea.NewProgram(ui.NewChatModel(c, agent), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return err
			}
			ui.PrintInfo(cmd.OutOrStdout(), "left the room at "+opts.server)
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "AI", "label for the agent's replies")
	cmd.Flags().BoolVar(&aiOnStart, "ai", false, "turn AI mode on after joining")
	return cmd
}
