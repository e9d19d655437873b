package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/service/server"
	"github.com/gitter-badger/deployer-1/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the REST listen address.
	httpAddress string
	// deploymentsFile overrides where known deployments are stored.
	deploymentsFile string

	// rootCmd represents the base command for running the deployer server.
	rootCmd = &cobra.Command{
		Use:   "deployer-server [listen-address]",
		Short: "Run the deployer gRPC and REST server.",
		Long: `Starts the deployer server that resolves artifacts by checksum in the
repository and deploys them to the application container.

Only the port from ServerAddress config is used for listening (e.g., :50051).
Listen address can be provided as argument to override config (e.g., :9090).
The REST API is served when http_addr is configured or --http is given.
Every setting can be overridden with DEPLOYER_* environment variables,
e.g. DEPLOYER_CONTAINER_URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:      configPath,
				ListenAddress:   listenAddress,
				HTTPAddress:     httpAddress,
				DeploymentsFile: deploymentsFile,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the deployer-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&httpAddress, "http", "", "REST listen address, overrides http_addr")
	rootCmd.Flags().StringVarP(&deploymentsFile, "deployments-file", "d", "", "path to store known deployments")
}
