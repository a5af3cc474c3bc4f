package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/perftune/pkg/client"
	"github.com/jamesainslie/perftune/pkg/daemon/store"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded data points",
	Long: `View the data points recorded by perftuned (or 'perftune monitor --record').

Each monitoring pass records cpu_percent, memory_percent and network_bytes,
plus bottleneck.<type> severities and directive.<category> applications.

The store is locked while perftuned runs; stop it first to read history.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove data points older than the retention period",
	Long:  `Remove data points older than store.retention, or --older-than when given.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().IntP("limit", "l", 20, "maximum number of data points to show")
	historyCmd.Flags().Duration("since", 0, "show data points from this long ago, oldest first")
	historyCmd.Flags().String("label", "", "only show labels with this prefix (e.g. bottleneck.)")
	historyPruneCmd.Flags().Duration("older-than", 0, "override store.retention")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openStore opens the configured store, explaining the usual lock failure.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		if client.IsDaemonRunning(cfg.PIDPath()) {
			return nil, fmt.Errorf("store is in use by perftuned (stop it with 'perftune daemon stop'): %w", err)
		}
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetDuration("since")
	label, _ := cmd.Flags().GetString("label")

	var points []store.DataPoint
	switch {
	case since > 0:
		points, err = st.Since(time.Now().Add(-since))
	case label != "":
		points, err = st.Recent(0)
	default:
		points, err = st.Recent(limit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	points = filterPoints(points, label, limit)

	total, _ := st.Count()
	return writeHistory(cmd.OutOrStdout(), outputFormat(), points, total)
}

// filterPoints keeps points whose label starts with prefix, up to limit
// (0 = all).
func filterPoints(points []store.DataPoint, prefix string, limit int) []store.DataPoint {
	out := make([]store.DataPoint, 0, len(points))
	for _, p := range points {
		if prefix != "" && !strings.HasPrefix(p.Label, prefix) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func writeHistory(w io.Writer, format string, points []store.DataPoint, total int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, p := range points {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		return yaml.NewEncoder(w).Encode(points)
	}

	if len(points) == 0 {
		fmt.Fprintln(w, "No data points recorded.")
		fmt.Fprintln(w, "Run 'perftune daemon start' or 'perftune monitor --record' to collect some.")
		return nil
	}

	fmt.Fprintf(w, "\n%-20s  %-24s  %14s  %-8s\n", "TIME", "LABEL", "VALUE", "UNITS")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, p := range points {
		fmt.Fprintf(w, "%-20s  %-24s  %14s  %-8s\n",
			p.Time.Local().Format("2006-01-02 15:04:05"),
			truncateString(p.Label, 24),
			formatValue(p),
			p.Units)
	}
	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintf(w, "\nShowing %d of %d data points. Use --limit to see more.\n", len(points), total)
	return nil
}

// formatValue renders a value in its units.
func formatValue(p store.DataPoint) string {
	switch p.Units {
	case "bytes":
		if p.Value < 0 {
			return "0 B"
		}
		return humanize.Bytes(uint64(p.Value))
	case "percent":
		return fmt.Sprintf("%.1f%%", p.Value)
	case "severity":
		return fmt.Sprintf("%.2f", p.Value)
	}
	return humanize.FormatFloat("#,###.##", p.Value)
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	retention := cfg.Store.Retention
	if d, _ := cmd.Flags().GetDuration("older-than"); d > 0 {
		retention = d
	}
	if retention <= 0 {
		return fmt.Errorf("no retention configured; pass --older-than")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	printInfo("Removing data points older than %s...", retention)
	n, err := st.Prune(time.Now().Add(-retention))
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	printInfo("Removed %d data points.", n)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
