package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/service/watcher"
)

// pollInterval between two deployment listings.
var pollInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log every change of the deployed units.",
	Long: `Polls the deployer server and logs units that were added, removed or
switched to other content since the previous poll. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return watcher.Run(ctx, &watcher.Options{
			ConfigPath:    configPath,
			ServerAddress: serverAddress,
			PollInterval:  pollInterval,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	watchCmd.Flags().DurationVarP(&pollInterval, "interval", "i", watcher.DefaultPollInterval, "poll interval")
}
