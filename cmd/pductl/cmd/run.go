package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand/pduendpoint/pkg/container"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
)

var runNode string

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Initialize and start a node's endpoints, blocking until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runNode == "" {
			return fmt.Errorf("--node is required")
		}
		c := container.New(runNode, args[0])
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		if err := c.CreatePduLChannels(); err != nil {
			c.StopAll()
			return fmt.Errorf("create pdu lchannels: %w", err)
		}
		if err := c.StartAll(); err != nil {
			pdulog.L().Errorw("run: one or more endpoints failed to start", "node", runNode, "err", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "node %q running with endpoints: %v\n", runNode, c.ListEndpointIds())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Fprintln(cmd.OutOrStdout(), "shutting down...")
		return c.StopAll()
	},
}

func init() {
	runCmd.Flags().StringVar(&runNode, "node", "", "node id to run from the manifest")
	rootCmd.AddCommand(runCmd)
}
