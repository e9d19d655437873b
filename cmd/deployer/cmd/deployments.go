package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/service/client"
)

var (
	// deployName overrides the deployment name derived from the artifact.
	deployName string
	// redeployChecksum selects the replacement content by checksum.
	redeployChecksum string
	// redeployVersion selects the replacement content by version.
	redeployVersion string

	errRedeployTarget = errors.New("exactly one of --checksum or --version is required")

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List deployed units.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				units, err := c.ListDeployments(ctx)
				if err != nil {
					return err
				}

				return printUnits(cmd.OutOrStdout(), units)
			})
		},
	}

	showCmd = &cobra.Command{
		Use:   "show <context-root>",
		Short: "Show a deployed unit and the versions it can switch to.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				unit, versions, err := c.GetDeployment(ctx, deployment.NormalizeContextRoot(args[0]))
				if err != nil {
					return err
				}

				if err = printUnits(cmd.OutOrStdout(), []deployment.DeployedUnit{unit}); err != nil {
					return err
				}

				return printVersions(cmd.OutOrStdout(), versions)
			})
		},
	}

	deployCmd = &cobra.Command{
		Use:   "deploy <checksum>",
		Short: "Deploy the artifact with the given checksum.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := deployment.ParseChecksum(args[0])
			if err != nil {
				return err
			}

			return withClient(func(ctx context.Context, c *client.Client) error {
				unit, err := c.Deploy(ctx, cs, deployName)
				if err != nil {
					return err
				}

				return printUnits(cmd.OutOrStdout(), []deployment.DeployedUnit{unit})
			})
		},
	}

	redeployCmd = &cobra.Command{
		Use:   "redeploy <context-root>",
		Short: "Replace the content of a deployed unit.",
		Long: `Replaces the content of the unit at the context root, either with the
artifact with the given checksum or with another version of the same artifact.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (redeployChecksum == "") == (redeployVersion == "") {
				return errRedeployTarget
			}

			root := deployment.NormalizeContextRoot(args[0])

			var cs deployment.Checksum

			if redeployChecksum != "" {
				parsed, err := deployment.ParseChecksum(redeployChecksum)
				if err != nil {
					return err
				}

				cs = parsed
			}

			return withClient(func(ctx context.Context, c *client.Client) error {
				var (
					unit deployment.DeployedUnit
					err  error
				)

				if redeployVersion != "" {
					unit, err = c.RedeployVersion(ctx, root, deployment.Version(redeployVersion))
				} else {
					unit, err = c.RedeployChecksum(ctx, root, cs)
				}

				if err != nil {
					return err
				}

				return printUnits(cmd.OutOrStdout(), []deployment.DeployedUnit{unit})
			})
		},
	}

	undeployCmd = &cobra.Command{
		Use:   "undeploy <context-root>",
		Short: "Undeploy the unit at the context root.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				unit, err := c.Undeploy(ctx, deployment.NormalizeContextRoot(args[0]))
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Undeployed %s\n", unit)

				return err
			})
		},
	}

	versionsCmd = &cobra.Command{
		Use:   "versions <checksum>",
		Short: "List the repository versions of the artifact with the given checksum.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := deployment.ParseChecksum(args[0])
			if err != nil {
				return err
			}

			return withClient(func(ctx context.Context, c *client.Client) error {
				versions, err := c.ListVersions(ctx, cs)
				if err != nil {
					return err
				}

				return printVersions(cmd.OutOrStdout(), versions)
			})
		},
	}
)

// printUnits writes units as an aligned table.
func printUnits(out io.Writer, units []deployment.DeployedUnit) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "CONTEXT ROOT\tNAME\tVERSION\tCHECKSUM")

	for _, unit := range units {
		version := unit.Version.String()
		if version == "" {
			version = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", unit.ContextRoot, unit.Name, version, unit.Checksum)
	}

	return w.Flush()
}

// printVersions writes one version per line.
func printVersions(out io.Writer, versions []deployment.Version) error {
	for _, v := range versions {
		if _, err := fmt.Fprintln(out, v); err != nil {
			return err
		}
	}

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	deployCmd.Flags().StringVarP(&deployName, "name", "n", "", "deployment name, e.g. app-test.war")
	redeployCmd.Flags().StringVar(&redeployChecksum, "checksum", "", "checksum of the replacement artifact")
	redeployCmd.Flags().StringVar(&redeployVersion, "version", "", "version of the same artifact to switch to")
}
