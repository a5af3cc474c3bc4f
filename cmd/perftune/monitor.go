package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/daemon/store"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/output"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor resource usage in the foreground",
	Long: `Sample resource usage on a fixed interval and print one line per
snapshot and detected bottleneck until interrupted.

With --optimize, directives from the knowledge base are applied for every
bottleneck; add --dry-run to only report them.

Examples:
  perftune monitor -i 500ms
  perftune monitor --duration 1m --json | jq .usage.cpu_percent
  perftune monitor --optimize --dry-run`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

// monitorBindings maps config keys to monitor flags.
var monitorBindings = map[string]string{
	"interval":      "interval",
	"optimize":      "optimize",
	"apply.dry_run": "dry-run",
}

func init() {
	monitorCmd.Flags().DurationP("interval", "i", config.DefaultInterval, "sampling interval")
	monitorCmd.Flags().Duration("duration", 0, "stop after this long (0 = until interrupted)")
	monitorCmd.Flags().Bool("optimize", false, "apply knowledge base directives for bottlenecks")
	monitorCmd.Flags().BoolP("dry-run", "d", false, "report directives without changing kernel settings")
	monitorCmd.Flags().BoolP("json", "j", false, "one JSON object per snapshot")
	monitorCmd.Flags().Bool("record", false, "record data points to the store")

	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, monitorBindings)
	if err != nil {
		return err
	}
	th, err := cfg.DetectorThresholds()
	if err != nil {
		return err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	format := monitorFormat(outputFormat(), jsonOut)
	if _, err := output.Get(format); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log := logging.Get("cli")
	var mu sync.Mutex
	opts := []daemon.Option{
		daemon.WithSnapshotHandler(func(s daemon.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if err := render(out, format, snapshotReport(s, th, cfg.Apply.DryRun)); err != nil {
				log.Warn("writing snapshot", "error", err)
			}
		}),
	}

	if record, _ := cmd.Flags().GetBool("record"); record {
		st, err := store.Open(cfg.StorePath())
		if err != nil {
			return fmt.Errorf("opening store (is perftuned running?): %w", err)
		}
		defer st.Close()
		opts = append(opts, daemon.WithStore(st))
	}

	svc, err := daemon.NewService(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	printVerbose("monitoring every %s (optimize=%t, dry-run=%t)", cfg.Interval, cfg.Optimize, cfg.Apply.DryRun)

	<-ctx.Done()
	svc.Stop()

	st := svc.Status()
	printVerbose("%d samples in %s", st.Samples, time.Since(st.StartTime).Round(time.Millisecond))
	return nil
}

// monitorFormat picks a streaming format: pretty output becomes one plain
// line per record and json becomes jsonl.
func monitorFormat(format string, jsonOut bool) string {
	switch {
	case jsonOut, format == "json":
		return "jsonl"
	case format == "pretty":
		return "plain"
	}
	return format
}

// snapshotReport wraps one monitoring pass for the output formatters.
func snapshotReport(s daemon.Snapshot, th types.Thresholds, dryRun bool) *output.Report {
	usage := s.Usage
	found := s.Bottlenecks
	if found == nil {
		found = []types.Bottleneck{}
	}
	return &output.Report{
		Time:        usage.Timestamp,
		Usage:       &usage,
		Thresholds:  &th,
		Bottlenecks: found,
		Actions:     s.Actions,
		DryRun:      dryRun,
	}
}

// commandContext is cmd's context, or Background outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
