package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile represents the daemon startup status. The CLI polls it after
// launching perftuned in the background.
type StatusFile struct {
	Status    string     `json:"status"`               // "ready" or "error"
	PID       int        `json:"pid,omitempty"`        // only for ready status
	Socket    string     `json:"socket,omitempty"`     // only for ready status
	StartedAt *time.Time `json:"started_at,omitempty"` // only for ready status
	Error     string     `json:"error,omitempty"`      // only for error status
}

// WriteStatusReady writes a ready status file.
func WriteStatusReady(path, socketPath string) error {
	now := time.Now().UTC()
	status := StatusFile{
		Status:    StatusReady,
		PID:       os.Getpid(),
		Socket:    socketPath,
		StartedAt: &now,
	}
	return writeStatus(path, &status)
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	status := StatusFile{
		Status: StatusError,
		Error:  err.Error(),
	}
	return writeStatus(path, &status)
}

// writeStatus replaces the file atomically so a poller never sees half of it.
func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file. A missing file is not an error.
func RemoveStatus(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StatusPath returns the status file path for a state directory.
func StatusPath(stateDir string) string {
	return filepath.Join(stateDir, "perftune.status")
}
