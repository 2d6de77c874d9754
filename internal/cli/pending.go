package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agendae/fieldsync/internal/model"
)

// pendingEntry groups everything queued against one appointment.
type pendingEntry struct {
	AppointmentID string                  `json:"appointmentId"`
	LocalOnly     bool                    `json:"localOnly"`
	Mutations     []model.PendingMutation `json:"mutations,omitempty"`
	Media         []model.PendingMedia    `json:"media,omitempty"`
}

func newPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued changes waiting for the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			ids, err := app.store.QueuedAppointmentIDs(ctx, app.cfg.User)
			if err != nil {
				return WrapExitError(ExitFailure, "read queues", err)
			}

			entries := make([]pendingEntry, 0, len(ids))
			for _, id := range ids {
				muts, err := app.store.MutationsFor(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "read mutations", err)
				}
				media, err := app.store.MediaFor(ctx, id)
				if err != nil {
					return WrapExitError(ExitFailure, "read media", err)
				}
				entries = append(entries, pendingEntry{
					AppointmentID: id,
					LocalOnly:     model.IsLocalID(id),
					Mutations:     muts,
					Media:         media,
				})
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return out.Success(renderPending(entries), entries)
		},
	}
}

func renderPending(entries []pendingEntry) string {
	if len(entries) == 0 {
		return "nothing pending\n"
	}
	var b strings.Builder
	for _, e := range entries {
		if e.LocalOnly {
			fmt.Fprintf(&b, "%s (not yet created remotely)\n", e.AppointmentID)
		} else {
			fmt.Fprintf(&b, "%s\n", e.AppointmentID)
		}
		for _, m := range e.Mutations {
			fmt.Fprintf(&b, "  mutation %s %s\n", m.Action, m.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		for _, md := range e.Media {
			state := "queued"
			if md.Uploaded {
				state = "uploaded"
			}
			fmt.Fprintf(&b, "  media %s %s (%s)\n", md.Kind, md.ID, state)
		}
	}
	return b.String()
}
