// Package cli implements the fieldsync command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all subcommands.
type RootOptions struct {
	ConfigPath string
	Database   string
	User       string
	Format     string
	Verbose    bool
}

// ValidFormats are the accepted values for --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root fieldsync command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first schedule synchronization for field consultants",
		Long: `fieldsync keeps a consultant's schedule usable without connectivity.

It caches schedules and company data locally, applies check-ins, check-outs
and absences optimistically while offline, and reconciles every queued change
against the remote backend once connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q (valid: text, json)", opts.Format))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to local database (overrides config)")
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "consultant identifier (overrides config)")
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "text", "output format (text or json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose logging")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newPendingCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger builds the slog logger used by subcommands. Verbose enables
// debug-level output; everything goes to stderr so stdout stays parseable.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
