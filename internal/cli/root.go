// Package cli implements the callroom operator command.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/ui"
)

const (
	EnvServer     = "CALLROOM_SERVER"
	DefaultServer = "http://localhost:3000"
)

var version = "dev"

type options struct {
	server  string
	timeout time.Duration
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "callroom",
		Short: "Operator tool for the callroom signaling relay",
		Long: `callroom talks to a running callroom-relay: it reports relay and room status,
asks the relay's AI agent one-off questions, and opens an interactive chat with the agent.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	server := os.Getenv(EnvServer)
	if server == "" {
		server = DefaultServer
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "relay base URL (env "+EnvServer+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "how long to wait for the relay")

	root.AddCommand(
		newStatusCommand(opts),
		newAskCommand(opts),
		newChatCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure. It is called
// by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		ui.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}
