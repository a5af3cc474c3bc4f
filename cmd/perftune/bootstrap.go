package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/client"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
)

// tuiLogBuffer is how many records the dashboard's log pane can show.
const tuiLogBuffer = 200

// initializeLogging is the root PersistentPreRunE hook. It creates the XDG
// directories and sends logs to the rotating file, mirroring warnings to
// stderr unless --quiet is set.
func initializeLogging(_ *cobra.Command, _ []string) error {
	for _, dir := range []string{config.ConfigDir(), config.DataDir(), config.StateDir()} {
		if err := config.EnsureDir(dir); err != nil {
			return err
		}
	}

	settings := loggingSettings()
	settings.ConsoleLevel = consoleLevel(getVerbose(), getQuiet())
	return logging.Init(settings)
}

// initTUILogging re-initializes logging for the dashboard: records are
// buffered for the log pane and nothing is written to the terminal.
func initTUILogging() error {
	settings := loggingSettings()
	settings.ConsoleLevel = ""
	settings.BufferSize = tuiLogBuffer
	return logging.Init(settings)
}

// loggingSettings reads the logging section, falling back to defaults
// when the config cannot be loaded. The command reports that error later.
func loggingSettings() logging.Config {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		printVerbose("using default logging settings: %v", err)
		return logging.Config{Level: "info", Rotation: logging.DefaultRotationConfig()}
	}
	return cfg.LoggingSettings()
}

// consoleLevel picks the stderr mirror level for the global flags.
func consoleLevel(verbose, quiet bool) string {
	switch {
	case quiet:
		return ""
	case verbose:
		return "debug"
	default:
		return "warn"
	}
}

// daemonPaths maps the configuration onto the client's daemon paths. The
// config file is passed on so perftuned sees the same settings.
func daemonPaths(cfg *config.Config) client.DaemonPaths {
	paths := client.DaemonPaths{
		Binary: cfg.Daemon.BinaryPath,
		Socket: cfg.SocketPath(),
		PID:    cfg.PIDPath(),
	}
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			paths.Config = abs
		}
	}
	return paths
}
