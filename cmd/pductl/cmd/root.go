package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strand-protocol/strand/pduendpoint/pkg/output"
	"github.com/strand-protocol/strand/pduendpoint/pkg/pdulog"
)

var (
	outputFormat string
	verbose      bool

	formatter output.Formatter
)

// rootCmd is the base command for pductl.
var rootCmd = &cobra.Command{
	Use:   "pductl",
	Short: "Operate pduendpoint containers: validate manifests, run nodes, inspect status",
	Long: `pductl is the operator-facing CLI for the pduendpoint core. It validates
container manifests before anything binds a socket, runs a node's endpoints
as a foreground process, and reports or dashboards their live status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var logger *zap.Logger
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		pdulog.Set(logger.Sugar())
		formatter = output.New(outputFormat)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable development-mode structured logging")
}
