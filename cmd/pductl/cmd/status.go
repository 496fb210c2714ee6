package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand/pduendpoint/pkg/container"
	"github.com/strand-protocol/strand/pduendpoint/pkg/output"
)

var statusNode string

type endpointStatus struct {
	ID      string `json:"id"`
	Running bool   `json:"running"`
}

func (s endpointStatus) Columns() []string { return []string{"ENDPOINT", "RUNNING"} }
func (s endpointStatus) Values() []string  { return []string{s.ID, strconv.FormatBool(s.Running)} }

var statusCmd = &cobra.Command{
	Use:   "status <manifest>",
	Short: "Start a node's endpoints, print one status snapshot, then stop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusNode == "" {
			return fmt.Errorf("--node is required")
		}
		c := container.New(statusNode, args[0])
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

		var rows []output.Row
		for _, id := range c.ListEndpointIds() {
			ep, _ := c.Ref(id)
			rows = append(rows, endpointStatus{ID: id, Running: ep != nil && ep.IsRunning()})
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(rows))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusNode, "node", "", "node id to inspect from the manifest")
	rootCmd.AddCommand(statusCmd)
}
