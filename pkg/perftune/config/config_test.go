package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/perftune/pkg/perftune/knowledge"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultSource, cfg.Source)
	assert.False(t, cfg.Optimize)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, DefaultStoreRetention, cfg.Store.Retention)
	assert.Equal(t, "/", cfg.Apply.Root)
	assert.Equal(t, DefaultKnowledgeBasePath(), cfg.KnowledgeBase)

	th, err := cfg.DetectorThresholds()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultThresholds(), th)
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	content := `
interval: 250ms
source: portable
optimize: true
thresholds:
  cpu: 70
  memory: 85
  network: 2GB
  storage: 100MiB
apply:
  dry_run: true
logging:
  level: debug
  rotation:
    max_size: 1MB
    max_backups: 2
daemon:
  socket_path: /tmp/pt.sock
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, "portable", cfg.Source)
	assert.True(t, cfg.Optimize)
	assert.True(t, cfg.Apply.DryRun)
	assert.Equal(t, "/tmp/pt.sock", cfg.SocketPath())
	assert.Equal(t, DefaultPIDPath(), cfg.PIDPath())

	th, err := cfg.DetectorThresholds()
	require.NoError(t, err)
	assert.Equal(t, types.Thresholds{CPU: 70, Memory: 85, Network: 2_000_000_000, Storage: 100 * 1024 * 1024}, th)

	ls := cfg.LoggingSettings()
	assert.Equal(t, "debug", ls.Level)
	assert.Equal(t, int64(1_000_000), ls.Rotation.MaxSize)
	assert.Equal(t, 2, ls.Rotation.MaxBackups)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PERFTUNE_INTERVAL", "5s")
	t.Setenv("PERFTUNE_THRESHOLDS_CPU", "60")
	t.Setenv("PERFTUNE_OPTIMIZE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 60.0, cfg.Thresholds.CPU)
	assert.True(t, cfg.Optimize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero interval", "interval: 0s\n"},
		{"cpu out of range", "thresholds:\n  cpu: 120\n"},
		{"bad network size", "thresholds:\n  network: lots\n"},
		{"zero storage", "thresholds:\n  storage: 0B\n"},
		{"unknown source", "source: ebpf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadFile(path)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interval: [unterminated\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	require.NoError(t, err)
	assert.Equal(t, ConfigPath(), path)
	assert.FileExists(t, path)
	assert.FileExists(t, DefaultKnowledgeBasePath())

	// The written file must load cleanly and round-trip the defaults.
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	th, err := cfg.DetectorThresholds()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultThresholds(), th)

	kb := knowledge.Load(DefaultKnowledgeBasePath())
	assert.Equal(t, "cpu_governor=performance", kb.GetConfigValue(knowledge.KeyCPU))
	assert.Equal(t, 4, kb.Len())

	// A second call leaves edits alone.
	require.NoError(t, os.WriteFile(path, []byte("interval: 3s\n"), 0o644))
	_, err = WriteDefault()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "interval: 3s\n", string(data))
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/perftune", ConfigDir())
	assert.Equal(t, "/custom/config/perftune/config.yaml", ConfigPath())
}
