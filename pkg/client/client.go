// Package client provides a client for controlling the perftuned daemon:
// starting and stopping it and checking its health over the Unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
)

// DaemonBinary is the daemon executable name.
const DaemonBinary = "perftuned"

// Polling cadence for StartDaemon and StopDaemon.
var (
	startPolls   = 50
	stopPolls    = 20
	pollInterval = 100 * time.Millisecond
)

// Client connects to perftuned via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// DaemonStatus is what the CLI reports for `perftune daemon status`.
type DaemonStatus struct {
	Running   bool
	PID       int
	Health    string
	Socket    string
	StartedAt time.Time
}

// DefaultSocketPath returns the default Unix socket path for perftuned.
func DefaultSocketPath() string {
	return config.DefaultSocketPath()
}

// DefaultPIDPath returns the default PID file path for perftuned.
func DefaultPIDPath() string {
	return config.DefaultPIDPath()
}

// DefaultStatusPath returns the default startup status file path.
func DefaultStatusPath() string {
	return daemon.StatusPath(config.StateDir())
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to perftuned binary (auto-discovered if empty)
	Config string // Config file passed to perftuned, optional
	Socket string // Unix socket path
	PID    string // PID file path
	Status string // Startup status file path
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = DefaultPIDPath()
	}
	if p.Status == "" {
		p.Status = DefaultStatusPath()
	}
	return p
}

// args are the perftuned command-line arguments for p.
func (p DaemonPaths) args() []string {
	args := []string{"--socket", p.Socket, "--pid", p.PID, "--status", p.Status}
	if p.Config != "" {
		args = append(args, "--config", p.Config)
	}
	return args
}

// Connect establishes a connection to perftuned.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to perftuned and waits for
// the first health response or ctx to expire.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	// Check if socket exists
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}
	// NewClient is lazy; one round trip proves the socket answers.
	if _, err := c.Health(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Health returns the daemon's serving status, e.g. "SERVING".
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName},
		grpc.WaitForReady(true))
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}

// IsServing reports whether the daemon's monitor is running.
func (c *Client) IsServing(ctx context.Context) bool {
	status, err := c.Health(ctx)
	return err == nil && status == healthpb.HealthCheckResponse_SERVING.String()
}

// WatchHealth streams serving status changes until ctx is cancelled or
// the daemon goes away. The channel is closed when the stream ends.
func (c *Client) WatchHealth(ctx context.Context) (<-chan string, error) {
	stream, err := c.health.Watch(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName})
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 4)
	go func() {
		defer close(ch)
		for {
			resp, err := stream.Recv()
			if err != nil {
				return
			}
			select {
			case ch <- resp.GetStatus().String():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Status gathers process, socket and health information. It never fails;
// a stopped daemon yields Running false.
func Status(ctx context.Context, paths DaemonPaths) DaemonStatus {
	paths = paths.withDefaults()

	st := DaemonStatus{Socket: paths.Socket}
	pid, err := daemon.ReadPIDFile(paths.PID)
	if err != nil || !daemon.IsProcessRunning(pid) {
		return st
	}
	st.Running = true
	st.PID = pid

	if sf, err := daemon.ReadStatus(paths.Status); err == nil && sf.StartedAt != nil {
		st.StartedAt = *sf.StartedAt
	}

	c, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		st.Health = "UNREACHABLE"
		return st
	}
	defer c.Close()
	if st.Health, err = c.Health(ctx); err != nil {
		st.Health = "UNREACHABLE"
	}
	return st
}

// EnsureDaemon ensures the daemon is running, starting it if necessary.
// Idempotent: returns nil if daemon is already running.
func EnsureDaemon(paths DaemonPaths) error {
	return StartDaemon(paths)
}

// StartDaemon starts perftuned in the background and waits for its socket
// or status file. Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil // Already running, nothing to do
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", DaemonBinary, err)
	}

	// Clean up stale status file before starting
	_ = daemon.RemoveStatus(paths.Status)

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, paths.args()...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Reap the child if it exits while we are still here.
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	for range startPolls {
		time.Sleep(pollInterval)

		// Status file carries an explicit ready or error
		if status, err := daemon.ReadStatus(paths.Status); err == nil {
			switch status.Status {
			case daemon.StatusReady:
				return nil
			case daemon.StatusError:
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}

		if _, err := os.Stat(paths.Socket); err == nil && IsDaemonRunning(paths.PID) {
			return nil
		}

		select {
		case <-exited:
			return errors.New("daemon exited during startup")
		default:
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon sends SIGTERM to the daemon and waits for it to exit.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !IsDaemonRunning(paths.PID) {
		return nil // Not running, nothing to do
	}

	if err := daemon.SignalDaemon(paths.PID, syscall.SIGTERM); err != nil {
		if errors.Is(err, daemon.ErrDaemonNotRunning) {
			return nil
		}
		return fmt.Errorf("stop daemon: %w", err)
	}

	for range stopPolls {
		time.Sleep(pollInterval)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the perftuned binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), DaemonBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, dir := range goBinDirs() {
		candidate := filepath.Join(dir, DaemonBinary)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(DaemonBinary); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found", DaemonBinary)
}

// goBinDirs lists where `go install` puts binaries: GOBIN, GOPATH/bin,
// then $HOME/go/bin.
func goBinDirs() []string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		dirs = append(dirs, filepath.Join(filepath.SplitList(gopath)[0], "bin"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	return dirs
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}
