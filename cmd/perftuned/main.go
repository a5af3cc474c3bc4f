// Command perftuned runs the perftune monitor as a background daemon. It
// records data points, applies knowledge base directives when optimize is
// on and serves gRPC health on a Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/daemon/metrics"
	"github.com/jamesainslie/perftune/pkg/daemon/store"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
)

// options are the command-line paths. Empty values come from the config.
type options struct {
	Config string
	Socket string
	PID    string
	Status string
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "perftuned",
	Short: "perftune background daemon",
	Long: `perftuned samples resource usage continuously, records data points and,
with optimize enabled, applies knowledge base directives.

It is normally started by 'perftune daemon start'. SIGHUP reloads the
knowledge base; SIGINT and SIGTERM shut it down.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, opts)
	},
}

func init() {
	rootCmd.Flags().StringVar(&opts.Config, "config", "", "config file (default: ~/.config/perftune/config.yaml)")
	rootCmd.Flags().StringVar(&opts.Socket, "socket", "", "Unix socket path")
	rootCmd.Flags().StringVar(&opts.PID, "pid", "", "PID file path")
	rootCmd.Flags().StringVar(&opts.Status, "status", "", "startup status file path")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "perftuned: %v\n", err)
		os.Exit(1)
	}
}

// resolve fills empty paths from cfg.
func (o options) resolve(cfg *config.Config) options {
	if o.Socket == "" {
		o.Socket = cfg.SocketPath()
	}
	if o.PID == "" {
		o.PID = cfg.PIDPath()
	}
	if o.Status == "" {
		o.Status = daemon.StatusPath(config.StateDir())
	}
	return o
}

// run starts the daemon and blocks until ctx is done or the server fails.
// Startup failures are written to the status file for the waiting CLI.
func run(ctx context.Context, o options) (err error) {
	statusPath := o.Status
	if statusPath == "" {
		statusPath = daemon.StatusPath(config.StateDir())
	}
	defer func() {
		if err != nil {
			_ = daemon.WriteStatusError(statusPath, err)
		}
	}()

	cfg, err := config.LoadFile(o.Config)
	if err != nil {
		return err
	}
	o = o.resolve(cfg)

	if err := logging.Init(cfg.LoggingSettings()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()
	log := logging.Get("perftuned")

	storePath := ""
	if cfg.Store.Enabled {
		storePath = cfg.StorePath()
	}
	if err := daemon.RecoverFromStaleDaemon(o.PID, o.Socket, storePath); err != nil {
		return err
	}

	svcOpts := []daemon.Option{daemon.WithMetrics(metrics.New())}
	if cfg.Store.Enabled {
		st, err := store.Open(storePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		svcOpts = append(svcOpts, daemon.WithStore(st))
	}

	svc, err := daemon.NewService(cfg, svcOpts...)
	if err != nil {
		return err
	}

	srv, err := daemon.NewServer(daemon.Config{SocketPath: o.Socket})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			log.Warn("error during shutdown", "error", cerr)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()
	srv.SetServing(true)

	if err := daemon.WritePIDFile(o.PID); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() {
		if rerr := daemon.RemovePIDFile(o.PID); rerr != nil {
			log.Warn("failed to remove PID file", "error", rerr)
		}
	}()
	if err := daemon.WriteStatusReady(statusPath, o.Socket); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	defer func() { _ = daemon.RemoveStatus(statusPath) }()

	log.Info("perftuned started", "socket", o.Socket, "pid", os.Getpid())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			srv.SetServing(false)
			return nil
		case <-hup:
			log.Info("reloading knowledge base")
			svc.ReloadKnowledgeBase()
		case err := <-serveErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("server stopped", "error", err)
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		}
	}
}
