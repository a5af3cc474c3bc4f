package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigTemplate = `# perftune configuration

# Sampling period for the resource monitor.
interval: %s

# Metric source: auto, proc (Linux /proc) or portable (gopsutil).
source: %s

# Bottleneck category to tuning directive mapping.
knowledge_base: %s

# Apply knowledge base directives when bottlenecks are detected.
optimize: false

thresholds:
  cpu: %.0f        # percent
  memory: %.0f     # percent
  network: %s     # summed rx+tx bytes over all interfaces
  storage: %s

apply:
  dry_run: false   # log intended kernel writes only
  root: /          # prefix for /proc and /sys

store:
  enabled: true
  path: ""         # default: $XDG_DATA_HOME/perftune/perftune.db
  retention: 168h

metrics:
  addr: ""         # e.g. 127.0.0.1:9273 to serve /metrics

logging:
  level: info
  path: ""         # default: $XDG_STATE_HOME/perftune/perftune.log
  rotation:
    max_size: %s
    max_backups: %d
  components:
    monitor: info
    applicator: info

daemon:
  binary_path: ""  # perftuned, auto-discovered when empty
  socket_path: ""  # default: $XDG_DATA_HOME/perftune/perftune.sock
  pid_path: ""
`

const defaultKnowledgeBase = `# perftune knowledge base
# <category>=<setting>=<value>[,<setting>=<value>...]
cpu_bottleneck=cpu_governor=performance
memory_bottleneck=hugepages=1024,vm.swappiness=10
network_bottleneck=tcp_rmem=4096:87380:16777216,tcp_wmem=4096:65536:16777216,net.core.rmem_max=16777216,net.core.wmem_max=16777216
storage_bottleneck=vm.dirty_ratio=10,vm.dirty_background_ratio=5
`

// WriteDefault writes the default config file and knowledge base into
// ConfigDir unless they already exist. It returns the config file path.
func WriteDefault() (string, error) {
	dir := ConfigDir()
	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(defaultConfigTemplate,
		DefaultInterval, DefaultSource, DefaultKnowledgeBasePath(),
		DefaultCPUThreshold, DefaultMemoryThreshold,
		DefaultNetworkThreshold, DefaultStorageThreshold,
		DefaultLogMaxSize, DefaultLogMaxBackups)
	if err := writeIfMissing(path, content); err != nil {
		return "", err
	}
	if err := writeIfMissing(DefaultKnowledgeBasePath(), defaultKnowledgeBase); err != nil {
		return "", err
	}
	return path, nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
