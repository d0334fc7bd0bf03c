package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/ui"
)

func newStatusCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relay health and room occupancy",
		Example: `  callroom status
  callroom status --server https://relay.example.com --format markdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ui.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			st, err := client.Probe(ctx, nil, opts.server)
			if err != nil {
				return fmt.Errorf("relay unreachable: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.StatusView(ui.RelayStatus{
				Server:      st.Server,
				Healthy:     st.Healthy,
				Ready:       st.Ready,
				Commit:      st.Commit,
				BuildTime:   st.BuildTime,
				ClientCount: st.ClientCount,
				Capacity:    st.Capacity,
				RoomReady:   st.RoomReady,
			}, f))
			if st.ReadyErr != "" {
				ui.PrintWarning(cmd.ErrOrStderr(), "relay not ready: "+st.ReadyErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(ui.FormatTable), "output format: table, markdown or csv")
	return cmd
}
