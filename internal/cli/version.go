package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmueller/voxbatch/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "voxbatch v%s\n", version.Describe())
			return nil
		},
	}
}
