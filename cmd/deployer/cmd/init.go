package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/service/setup"
)

var (
	initHTTPAddress   string
	initRepositoryURL string
	initContainerURL  string
	initVerify        bool

	initCmd = &cobra.Command{
		Use:   "init <server-address>",
		Short: "Write the configuration file.",
		Long: `Writes the configuration file used by deployer and deployer-server.
The repository and container URLs are only needed where the server runs.
With --verify the server must answer a health check before anything is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return setup.Run(context.Background(), &setup.Options{
				ConfigPath:    configPath,
				ServerAddress: args[0],
				HTTPAddress:   initHTTPAddress,
				RepositoryURL: initRepositoryURL,
				ContainerURL:  initContainerURL,
				Verify:        initVerify,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().StringVar(&initHTTPAddress, "http", "", "REST listen address of the server")
	initCmd.Flags().StringVar(&initRepositoryURL, "repository-url", "", "artifact repository base URL")
	initCmd.Flags().StringVar(&initContainerURL, "container-url", "", "container management URL")
	initCmd.Flags().BoolVar(&initVerify, "verify", false, "check the server health before writing")
}
