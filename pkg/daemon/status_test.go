package daemon_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/perftune/pkg/daemon"
)

func TestWriteStatusReady(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "state", "perftune.status")

	if err := daemon.WriteStatusReady(statusPath, "/run/perftune.sock"); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}

	data, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatalf("Failed to read status file: %v", err)
	}

	var status map[string]any
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("Failed to parse status JSON: %v", err)
	}

	if status["status"] != daemon.StatusReady {
		t.Errorf("Expected status 'ready', got %v", status["status"])
	}
	if status["socket"] != "/run/perftune.sock" {
		t.Errorf("Expected socket path, got %v", status["socket"])
	}
	if _, ok := status["started_at"]; !ok {
		t.Error("started_at should be present in ready status")
	}

	pid, ok := status["pid"].(float64)
	if !ok {
		t.Fatalf("Expected pid to be a number, got %T", status["pid"])
	}
	if int(pid) != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), int(pid))
	}

	if _, exists := status["error"]; exists {
		t.Error("Error field should not be present in ready status")
	}

	// No temp file is left behind.
	if _, err := os.Stat(statusPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary status file should not remain")
	}
}

func TestWriteStatusError(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "perftune.status")

	testErr := errors.New("daemon startup failed: store locked")
	if err := daemon.WriteStatusError(statusPath, testErr); err != nil {
		t.Fatalf("WriteStatusError failed: %v", err)
	}

	data, err := os.ReadFile(statusPath)
	if err != nil {
		t.Fatalf("Failed to read status file: %v", err)
	}

	var status map[string]any
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("Failed to parse status JSON: %v", err)
	}

	if status["status"] != daemon.StatusError {
		t.Errorf("Expected status 'error', got %v", status["status"])
	}
	if status["error"] != testErr.Error() {
		t.Errorf("Expected error '%s', got %v", testErr.Error(), status["error"])
	}
	for _, field := range []string{"pid", "socket", "started_at"} {
		if _, exists := status[field]; exists {
			t.Errorf("%s should not be present in error status", field)
		}
	}
}

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "perftune.status")

	t.Run("read ready status", func(t *testing.T) {
		if err := daemon.WriteStatusReady(statusPath, "/tmp/perftune.sock"); err != nil {
			t.Fatalf("WriteStatusReady failed: %v", err)
		}

		status, err := daemon.ReadStatus(statusPath)
		if err != nil {
			t.Fatalf("ReadStatus failed: %v", err)
		}

		if status.Status != daemon.StatusReady {
			t.Errorf("Expected status 'ready', got %s", status.Status)
		}
		if status.PID != os.Getpid() {
			t.Errorf("Expected PID %d, got %d", os.Getpid(), status.PID)
		}
		if status.StartedAt == nil || status.StartedAt.IsZero() {
			t.Error("Expected a start time")
		}
	})

	t.Run("read error status", func(t *testing.T) {
		testErr := errors.New("test error message")
		if err := daemon.WriteStatusError(statusPath, testErr); err != nil {
			t.Fatalf("WriteStatusError failed: %v", err)
		}

		status, err := daemon.ReadStatus(statusPath)
		if err != nil {
			t.Fatalf("ReadStatus failed: %v", err)
		}

		if status.Status != daemon.StatusError {
			t.Errorf("Expected status 'error', got %s", status.Status)
		}
		if status.Error != testErr.Error() {
			t.Errorf("Expected error '%s', got %s", testErr.Error(), status.Error)
		}
		if status.PID != 0 || status.StartedAt != nil {
			t.Errorf("Expected no PID or start time, got %+v", status)
		}
	})

	t.Run("read non-existent file", func(t *testing.T) {
		if _, err := daemon.ReadStatus(filepath.Join(dir, "nonexistent.status")); err == nil {
			t.Error("Expected error when reading non-existent file")
		}
	})

	t.Run("read invalid JSON", func(t *testing.T) {
		invalidPath := filepath.Join(dir, "invalid.status")
		if err := os.WriteFile(invalidPath, []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := daemon.ReadStatus(invalidPath); err == nil {
			t.Error("Expected error when reading invalid JSON")
		}
	})
}

func TestRemoveStatus(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "perftune.status")

	if err := daemon.WriteStatusReady(statusPath, ""); err != nil {
		t.Fatalf("WriteStatusReady failed: %v", err)
	}
	if err := daemon.RemoveStatus(statusPath); err != nil {
		t.Fatalf("RemoveStatus failed: %v", err)
	}
	if _, err := os.Stat(statusPath); !os.IsNotExist(err) {
		t.Error("Status file should have been removed")
	}
	if err := daemon.RemoveStatus(statusPath); err != nil {
		t.Errorf("RemoveStatus on a missing file failed: %v", err)
	}
}

func TestStatusPath(t *testing.T) {
	result := daemon.StatusPath("/home/user/.local/state/perftune")
	expected := "/home/user/.local/state/perftune/perftune.status"
	if result != expected {
		t.Errorf("Expected %s, got %s", expected, result)
	}
}
