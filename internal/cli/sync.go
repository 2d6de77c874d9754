package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agendae/fieldsync/internal/reconcile"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push every queued change to the remote backend",
		Long: `Sync reconciles the local queues against the remote backend: pending
appointments are created remotely and rebound to their remote IDs, queued
mutations are replayed in order, and pending media is uploaded.

Exits 1 when the backend is unreachable or any item stayed queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			eng := reconcile.New(app.store, app.backend, app.monitor, app.media,
				app.cfg.User, app.log,
				reconcile.WithCreateWindow(app.cfg.Sync.CreateWindow.Std()))

			report, err := eng.ReconcileAll(cmd.Context())
			if err != nil {
				if errors.Is(err, reconcile.ErrOffline) {
					out.Error("offline", "backend unreachable; changes stay queued")
					return NewExitError(ExitFailure, "backend unreachable")
				}
				return WrapExitError(ExitFailure, "sync", err)
			}

			if err := out.Success(renderReport(report), report); err != nil {
				return err
			}
			if report.Failures > 0 {
				return NewExitError(ExitFailure,
					fmt.Sprintf("%d item(s) stayed queued", report.Failures))
			}
			return nil
		},
	}
}

func renderReport(r reconcile.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "appointments created: %d\n", r.AppointmentsCreated)
	fmt.Fprintf(&b, "mutations applied:    %d\n", r.MutationsApplied)
	fmt.Fprintf(&b, "media uploaded:       %d\n", r.MediaUploaded)
	if r.MediaSkipped > 0 {
		fmt.Fprintf(&b, "media skipped:        %d\n", r.MediaSkipped)
	}
	if r.Failures > 0 {
		fmt.Fprintf(&b, "failures:             %d\n", r.Failures)
	}
	return b.String()
}
