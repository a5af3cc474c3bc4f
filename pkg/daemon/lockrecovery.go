package daemon

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
)

// RecoverFromStaleDaemon checks for and cleans up stale daemon artifacts:
// the PID file, the socket and the store's badger LOCK file.
// Returns nil if cleanup succeeded or wasn't needed.
// Returns ErrDaemonAlreadyRunning if a daemon is actually running.
func RecoverFromStaleDaemon(pidPath, socketPath, storePath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		// No PID file or invalid PID means nothing to recover - this is success, not an error
		return nil //nolint:nilerr // intentional: missing/invalid PID file is not an error condition
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	log := logging.Get("daemon")
	log.Warn("cleaning up stale daemon files", "stale_pid", pid)

	// Remove stale files (ignore errors - files may not exist)
	_ = os.Remove(pidPath)
	_ = os.Remove(socketPath)
	if storePath != "" {
		_ = os.Remove(filepath.Join(storePath, "LOCK"))
	}

	return nil
}
