package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand adds a `version` subcommand to root.
func AttachCobraVersionCommand(root *cobra.Command) {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print the release, commit and build time injected at build time, plus the Go toolchain version.",
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), Version)
				return
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Current())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print the release only")
	root.AddCommand(cmd)
}
