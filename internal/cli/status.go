package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// statusData is the JSON payload for the status command.
type statusData struct {
	Online              string `json:"online"`
	PendingAppointments int    `json:"pendingAppointments"`
	PendingMutations    int    `json:"pendingMutations"`
	PendingMedia        int    `json:"pendingMedia"`
	MediaBytes          int64  `json:"mediaBytes"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			online := app.monitor.Refresh(ctx)

			appts, err := app.store.PendingAppointments(ctx, app.cfg.User)
			if err != nil {
				return WrapExitError(ExitFailure, "read pending appointments", err)
			}
			muts, err := app.store.Mutations(ctx, app.cfg.User)
			if err != nil {
				return WrapExitError(ExitFailure, "read pending mutations", err)
			}
			items, bytes, err := app.store.MediaUsage(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "read media usage", err)
			}

			data := statusData{
				Online:              onlineWord(online),
				PendingAppointments: len(appts),
				PendingMutations:    len(muts),
				PendingMedia:        items,
				MediaBytes:          bytes,
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return out.Success(renderStatus(data), data)
		},
	}
}

func onlineWord(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func renderStatus(d statusData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend:              %s\n", d.Online)
	fmt.Fprintf(&b, "pending appointments: %d\n", d.PendingAppointments)
	fmt.Fprintf(&b, "pending mutations:    %d\n", d.PendingMutations)
	fmt.Fprintf(&b, "pending media:        %d (%s)\n", d.PendingMedia, formatBytes(d.MediaBytes))
	return b.String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
