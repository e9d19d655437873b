package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/service/client"
	"github.com/gitter-badger/deployer-1/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// serverAddress overrides server_addr from the configuration.
	serverAddress string

	// rootCmd represents the base command of the deployer CLI.
	rootCmd = &cobra.Command{
		Use:   "deployer",
		Short: "Manage deployments through the deployer server.",
		Long: `Command line client of the deployer server.

Artifacts are addressed by their repository checksum (MD5, SHA-1 or SHA-256,
hex encoded) and deployed units by their context root.
The server address is read from the configuration file unless --server is given.`,
		SilenceUsage: true,
	}
)

// Execute runs the deployer CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withClient connects to the server for the duration of fn.
// The context is canceled on SIGINT or SIGTERM.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	c, err := client.Connect(ctx, &client.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
	})
	if err != nil {
		return err
	}

	// Best-effort cleanup.
	defer func() {
		_ = c.Close()
	}()

	return fn(ctx, c)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename,
		"path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "",
		"deployer server address, overrides server_addr")

	rootCmd.AddCommand(
		listCmd,
		showCmd,
		deployCmd,
		redeployCmd,
		undeployCmd,
		versionsCmd,
		fetchCmd,
		watchCmd,
		initCmd,
	)
}
