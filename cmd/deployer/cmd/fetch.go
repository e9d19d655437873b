package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/config"
	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/repository/artifactory"
	"github.com/gitter-badger/deployer-1/internal/service/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <checksum> [target]",
	Short: "Download an artifact from the repository and verify its checksum.",
	Long: `Downloads the artifact with the given checksum straight from the repository.
The target defaults to the current directory; when it is a directory the
repository file name is kept. An existing file is only replaced when the
downloaded content matches the checksum.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := deployment.ParseChecksum(args[0])
		if err != nil {
			return err
		}

		target := "."
		if len(args) > 1 {
			target = args[1]
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		repo, err := artifactory.New(artifactory.Options{
			URL:      cfg.Repository.URL,
			Username: cfg.Repository.Username,
			Password: cfg.Repository.Password,
			Timeout:  cfg.Repository.Timeout,
		})
		if err != nil {
			return err
		}

		written, err := fetcher.Fetch(ctx, repo, cs, target)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), written)

		return err
	},
}
