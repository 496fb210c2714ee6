package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pductlVersion is set at build time via
// -ldflags "-X github.com/strand-protocol/strand/pduendpoint/cmd/pductl/cmd.pductlVersion=x.y.z"
var pductlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the pductl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "pductl version %s\n", pductlVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
