package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the perftuned daemon",
	Long: `Manage the perftuned daemon for continuous monitoring.

The daemon samples resource usage in the background, records data points
for 'perftune history' and, with optimize enabled, applies directives.
Its health is served over gRPC on a Unix socket.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the perftuned daemon",
	Long:  `Start the perftuned daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the perftuned daemon",
	Long:  `Stop the perftuned daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the perftuned daemon",
	Long:  `Stop and start the perftuned daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the perftuned daemon.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// pathsForCommand loads the config and derives the daemon paths.
func pathsForCommand(cmd *cobra.Command) (client.DaemonPaths, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return client.DaemonPaths{}, err
	}
	return daemonPaths(cfg), nil
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	paths, err := pathsForCommand(cmd)
	if err != nil {
		return err
	}
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon already running")
		return nil
	}

	printVerbose("starting daemon (socket %s)...", paths.Socket)
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(cmd *cobra.Command, _ []string) error {
	paths, err := pathsForCommand(cmd)
	if err != nil {
		return err
	}

	printVerbose("checking PID file: %s", paths.PID)
	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon is not running")
		return nil
	}

	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, _ []string) error {
	paths, err := pathsForCommand(cmd)
	if err != nil {
		return err
	}
	if err := client.RestartDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths, err := pathsForCommand(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), 5*time.Second)
	defer cancel()
	st := client.Status(ctx, paths)

	w := cmd.OutOrStdout()
	if !st.Running {
		fmt.Fprintln(w, "Daemon status: not running")
		return nil
	}

	fmt.Fprintln(w, "Daemon status: running")
	fmt.Fprintf(w, "  PID:    %d\n", st.PID)
	fmt.Fprintf(w, "  Health: %s\n", st.Health)
	fmt.Fprintf(w, "  Socket: %s\n", st.Socket)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "  Uptime: %s\n", formatDuration(time.Since(st.StartedAt)))
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
