package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand/pduendpoint/cmd/pductl/pkg/tui"
	"github.com/strand-protocol/strand/pduendpoint/pkg/container"
)

var dashboardNode string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <manifest>",
	Short: "Start a node's endpoints and watch their live status in a terminal dashboard",
	Long: `dashboard starts the node's endpoints exactly like run, then launches an
interactive terminal table refreshed every 2 seconds until you quit, at which
point every endpoint is stopped and closed.

Key bindings:
  r          Force an immediate refresh
  q / Ctrl+C Quit and stop the container`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dashboardNode == "" {
			return fmt.Errorf("--node is required")
		}
		c := container.New(dashboardNode, args[0])
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer c.StopAll()
		if err := c.CreatePduLChannels(); err != nil {
			return fmt.Errorf("create pdu lchannels: %w", err)
		}
		if err := c.StartAll(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}

		p := tea.NewProgram(tui.New(dashboardNode, c), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardNode, "node", "", "node id to run and watch from the manifest")
	rootCmd.AddCommand(dashboardCmd)
}
