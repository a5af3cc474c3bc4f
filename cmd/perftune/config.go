package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/perftune/pkg/perftune/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage perftune configuration settings.

Configuration is loaded from:
  1. --config, if given
  2. $XDG_CONFIG_HOME/perftune/config.yaml
  3. ~/.config/perftune/config.yaml

Environment variables override config file settings using the PERFTUNE_ prefix:
  PERFTUNE_INTERVAL=500ms
  PERFTUNE_THRESHOLDS_CPU=75
  PERFTUNE_OPTIMIZE=true`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration files",
	Long:  `Create the default config file and knowledge base if they don't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides are the environment variables worth reporting.
var envOverrides = []string{
	"PERFTUNE_INTERVAL",
	"PERFTUNE_SOURCE",
	"PERFTUNE_KNOWLEDGE_BASE",
	"PERFTUNE_OPTIMIZE",
	"PERFTUNE_THRESHOLDS_CPU",
	"PERFTUNE_THRESHOLDS_MEMORY",
	"PERFTUNE_THRESHOLDS_NETWORK",
	"PERFTUNE_THRESHOLDS_STORAGE",
	"PERFTUNE_APPLY_DRY_RUN",
	"PERFTUNE_APPLY_ROOT",
	"PERFTUNE_STORE_PATH",
	"PERFTUNE_METRICS_ADDR",
	"PERFTUNE_LOGGING_LEVEL",
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return showConfig(cmd.OutOrStdout(), cfg, configFileUsed())
}

func showConfig(w io.Writer, cfg *config.Config, file string) error {
	if file != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", file)
	} else {
		fmt.Fprintln(w, "Config file: (using defaults, no file found)")
		fmt.Fprintln(w)
	}

	data, err := yaml.Marshal(configView(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	_, _ = w.Write(data)

	fmt.Fprintln(w, "\nEnvironment Overrides:")
	fmt.Fprintln(w, "----------------------")
	overridden := false
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(w, "%s=%s\n", name, val)
			overridden = true
		}
	}
	if !overridden {
		fmt.Fprintln(w, "(none)")
	}
	return nil
}

// configView is the effective configuration with defaults resolved, in
// config file key names.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"interval":       cfg.Interval.String(),
		"source":         cfg.Source,
		"knowledge_base": cfg.KnowledgeBase,
		"optimize":       cfg.Optimize,
		"thresholds": map[string]any{
			"cpu":     cfg.Thresholds.CPU,
			"memory":  cfg.Thresholds.Memory,
			"network": cfg.Thresholds.Network,
			"storage": cfg.Thresholds.Storage,
		},
		"apply": map[string]any{
			"dry_run": cfg.Apply.DryRun,
			"root":    cfg.Apply.Root,
		},
		"store": map[string]any{
			"enabled":   cfg.Store.Enabled,
			"path":      cfg.StorePath(),
			"retention": cfg.Store.Retention.String(),
		},
		"metrics": map[string]any{
			"addr": cfg.Metrics.Addr,
		},
		"logging": map[string]any{
			"level": cfg.Logging.Level,
			"path":  cfg.Logging.Path,
		},
		"daemon": map[string]any{
			"socket_path": cfg.SocketPath(),
			"pid_path":    cfg.PIDPath(),
		},
	}
}

// configFileUsed is the config file that exists, if any.
func configFileUsed() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		return config.ConfigPath()
	}
	return ""
}

// runConfigInit creates the default config file and knowledge base.
func runConfigInit(_ *cobra.Command, _ []string) error {
	_, statErr := os.Stat(config.ConfigPath())
	existed := statErr == nil

	// Still called when the config exists, to restore a missing knowledge base.
	path, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if existed {
		printInfo("Config file already exists: %s", path)
	} else {
		printInfo("Created default config file: %s", path)
	}
	printInfo("Knowledge base: %s", config.DefaultKnowledgeBasePath())
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath := config.ConfigPath()
	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
