package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/output"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "perftune",
		Short: "Detect and tune host performance bottlenecks",
		Long: `Perftune samples CPU, memory and network usage, flags resources that
cross their thresholds and applies tuning directives from a knowledge base.

Examples:
  perftune monitor                  # Watch usage in the foreground
  perftune monitor --optimize -d    # Show what would be tuned
  perftune detect --cpu 92          # One-shot detection on given values
  perftune dashboard                # Live TUI
  perftune daemon start             # Run perftuned in the background
  perftune history --limit 50       # Recorded data points`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/perftune/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: "+fmt.Sprint(output.Available()))
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration file and environment, letting flags
// of cmd that were set on the command line win. bindings maps config keys
// to flag names.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	v := config.NewViper(cfgFile)
	for key, name := range bindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return config.LoadViper(v)
}

// outputFormat is the --output value.
func outputFormat() string {
	if f := viper.GetString("output"); f != "" {
		return f
	}
	return "pretty"
}

// render writes r to w in the selected output format.
func render(w io.Writer, format string, r *output.Report) error {
	f, err := output.Get(format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// machineReadable reports whether format is meant for other programs.
func machineReadable(format string) bool {
	switch format {
	case "json", "jsonl", "yaml":
		return true
	}
	return false
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
