package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/cmd/perftune/tui"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live resource dashboard",
	Long: `Open a terminal dashboard showing CPU and memory gauges, network
counters, active bottlenecks and recent log records.

Keys: q quits, l toggles the log pane.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().DurationP("interval", "i", config.DefaultInterval, "sampling interval")
	dashboardCmd.Flags().Bool("optimize", false, "apply knowledge base directives for bottlenecks")
	dashboardCmd.Flags().BoolP("dry-run", "d", false, "report directives without changing kernel settings")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, monitorBindings)
	if err != nil {
		return err
	}

	// Console logging would tear the TUI; records go to the log pane.
	if err := initTUILogging(); err != nil {
		return fmt.Errorf("failed to initialize TUI logging: %w", err)
	}

	return tui.Run(tui.Options{Config: cfg})
}
