package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/perftune/applicator"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/detector"
	"github.com/jamesainslie/perftune/pkg/perftune/knowledge"
	"github.com/jamesainslie/perftune/pkg/perftune/monitor"
	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/output"
	"github.com/jamesainslie/perftune/pkg/perftune/source"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run bottleneck detection once",
	Long: `Check usage values against the configured thresholds.

Without usage flags the host is sampled over --sample; with them, the
given values are checked instead and nothing is read from the system.

Examples:
  perftune detect
  perftune detect --cpu 92 --memory 40
  perftune detect --network 3GB --storage 750MB -o json`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Detect bottlenecks once and apply their directives",
	Long: `Detect bottlenecks like 'perftune detect' and apply the knowledge base
directive for each one. Storage is not considered.

Examples:
  perftune optimize --dry-run
  perftune optimize --cpu 95 --dry-run
  perftune optimize --kb ./knowledge_base.conf`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

// usageFlags are the flags that replace a live sample.
var usageFlags = []string{"cpu", "memory", "network", "storage"}

func init() {
	for _, c := range []*cobra.Command{detectCmd, optimizeCmd} {
		c.Flags().Float64("cpu", 0, "CPU usage percent")
		c.Flags().Float64("memory", 0, "memory usage percent")
		c.Flags().String("network", "", "network bytes (e.g. 2GB)")
		c.Flags().Duration("sample", time.Second, "sampling window when no usage flags are given")
	}
	detectCmd.Flags().String("storage", "", "storage bytes (e.g. 750MB)")
	optimizeCmd.Flags().BoolP("dry-run", "d", false, "report directives without changing kernel settings")
	optimizeCmd.Flags().String("kb", "", "knowledge base file (default from config)")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(optimizeCmd)
}

// usageInput holds explicit usage values from the command line.
type usageInput struct {
	CPU     float64
	Memory  float64
	Network uint64
	Storage uint64
}

// usageFromFlags parses the usage flags. ok is false when none was set.
func usageFromFlags(cmd *cobra.Command) (in usageInput, ok bool, err error) {
	flags := cmd.Flags()
	for _, name := range usageFlags {
		if f := flags.Lookup(name); f != nil && f.Changed {
			ok = true
		}
	}
	if !ok {
		return in, false, nil
	}

	in.CPU, _ = flags.GetFloat64("cpu")
	in.Memory, _ = flags.GetFloat64("memory")
	if err := checkPercent("cpu", in.CPU); err != nil {
		return in, true, err
	}
	if err := checkPercent("memory", in.Memory); err != nil {
		return in, true, err
	}
	if in.Network, err = bytesFlag(cmd, "network"); err != nil {
		return in, true, err
	}
	if in.Storage, err = bytesFlag(cmd, "storage"); err != nil {
		return in, true, err
	}
	return in, true, nil
}

func checkPercent(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: --%s %v outside [0,100]", types.ErrValidation, name, v)
	}
	return nil
}

// bytesFlag parses a human byte size flag; an absent or empty flag is 0.
func bytesFlag(cmd *cobra.Command, name string) (uint64, error) {
	if cmd.Flags().Lookup(name) == nil {
		return 0, nil
	}
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: --%s: %w", types.ErrValidation, name, err)
	}
	return n, nil
}

// sampleUsage runs a monitor until it has two consecutive snapshots one
// window apart and returns both. The first only establishes the CPU and
// network baselines; curr is measured over window.
func sampleUsage(src source.MetricSource, window time.Duration) (prev, curr types.ResourceUsage, err error) {
	samples := make(chan types.ResourceUsage, 2)
	m, err := monitor.New(window, func(u types.ResourceUsage) {
		select {
		case samples <- u:
		default:
		}
	}, monitor.WithSource(src))
	if err != nil {
		return prev, curr, err
	}
	if err := m.Start(); err != nil {
		return prev, curr, err
	}
	defer m.Stop()

	timeout := time.After(3*window + time.Second)
	for i := 0; ; i++ {
		select {
		case u := <-samples:
			if i == 0 {
				prev = u
				continue
			}
			return prev, u, nil
		case <-timeout:
			return prev, curr, errors.New("timed out sampling resource usage")
		}
	}
}

// sampleFromConfig samples with the configured metric source.
func sampleFromConfig(cmd *cobra.Command, cfg *config.Config) (prev, curr types.ResourceUsage, err error) {
	src, err := source.New(source.Kind(cfg.Source))
	if err != nil {
		return prev, curr, err
	}
	window, _ := cmd.Flags().GetDuration("sample")
	printVerbose("sampling %s source over %s", cfg.Source, window)
	return sampleUsage(src, window)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	th, err := cfg.DetectorThresholds()
	if err != nil {
		return err
	}
	d, err := detector.New(th, nil)
	if err != nil {
		return err
	}

	report := &output.Report{Time: time.Now(), Thresholds: &th}
	in, explicit, err := usageFromFlags(cmd)
	if err != nil {
		return err
	}
	if explicit {
		report.Bottlenecks = d.Detect(in.CPU, in.Memory, in.Network, in.Storage)
	} else {
		prev, u, err := sampleFromConfig(cmd, cfg)
		if err != nil {
			return err
		}
		report.Usage = &u
		report.Bottlenecks = d.DetectBetween(prev, u)
	}
	return writeReport(cmd, report)
}

// writeReport renders report, noting an empty result for explicit values
// where the formatter has no usage section to hang it on.
func writeReport(cmd *cobra.Command, report *output.Report) error {
	if report.Bottlenecks == nil {
		report.Bottlenecks = []types.Bottleneck{}
	}
	format := outputFormat()
	if err := render(cmd.OutOrStdout(), format, report); err != nil {
		return err
	}
	if report.Usage == nil && len(report.Bottlenecks) == 0 && !machineReadable(format) {
		fmt.Fprintln(cmd.OutOrStdout(), "No bottlenecks detected")
	}
	return nil
}

// resultCollector applies directives and keeps each result for reporting.
type resultCollector struct {
	sys *applicator.System

	mu      sync.Mutex
	results []applicator.Result
}

func (c *resultCollector) ApplyConfiguration(directive string) {
	res := c.sys.Apply(directive)
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"apply.dry_run":  "dry-run",
		"knowledge_base": "kb",
	})
	if err != nil {
		return err
	}
	th, err := cfg.DetectorThresholds()
	if err != nil {
		return err
	}
	d, err := detector.New(th, nil)
	if err != nil {
		return err
	}

	collector := &resultCollector{sys: applicator.New(
		applicator.WithRoot(cfg.Apply.Root),
		applicator.WithDryRun(cfg.Apply.DryRun),
	)}
	kb := knowledge.Load(cfg.KnowledgeBase)
	printVerbose("knowledge base %s: %d entries", kb.Path(), kb.Len())
	opt := optimizer.New(d, kb, collector)

	report := &output.Report{Time: time.Now(), Thresholds: &th, DryRun: cfg.Apply.DryRun}
	in, explicit, err := usageFromFlags(cmd)
	if err != nil {
		return err
	}
	if explicit {
		report.Bottlenecks = d.Detect(in.CPU, in.Memory, in.Network, 0)
	} else {
		prev, u, err := sampleFromConfig(cmd, cfg)
		if err != nil {
			return err
		}
		report.Usage = &u
		report.Bottlenecks = d.DetectBetween(prev, u)
	}
	report.Actions = opt.Dispatch(report.Bottlenecks)

	if err := writeReport(cmd, report); err != nil {
		return err
	}
	if !machineReadable(outputFormat()) {
		printChanges(cmd, collector.results, cfg.Apply.DryRun)
	}
	return nil
}

// printChanges lists every kernel setting touched by the directives.
func printChanges(cmd *cobra.Command, results []applicator.Result, dryRun bool) {
	w := cmd.OutOrStdout()
	for _, res := range results {
		for _, c := range res.Changes {
			switch {
			case c.Err != nil:
				fmt.Fprintf(w, "  %s %s=%s: %v\n", output.DangerStyle.Render("failed"), c.Key, c.Value, c.Err)
			case dryRun:
				fmt.Fprintf(w, "  %s %s=%s (%s)\n", output.WarningStyle.Render("would set"), c.Key, c.Value, c.Path)
			default:
				fmt.Fprintf(w, "  %s %s=%s (was %s)\n", output.SuccessStyle.Render("set"), c.Key, c.Value, c.Previous)
			}
		}
		for _, m := range res.Malformed {
			fmt.Fprintf(w, "  %s %q\n", output.DangerStyle.Render("malformed"), m)
		}
	}
}
