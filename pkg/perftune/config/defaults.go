// Package config loads perftune settings from a YAML file, PERFTUNE_*
// environment variables and command-line flags, in increasing precedence.
package config

import "time"

// AppName names the XDG directories and the environment prefix.
const AppName = "perftune"

// Defaults.
const (
	DefaultInterval         = time.Second
	DefaultSource           = "auto"
	DefaultCPUThreshold     = 80.0
	DefaultMemoryThreshold  = 90.0
	DefaultNetworkThreshold = "1GB"
	DefaultStorageThreshold = "500MB"
	DefaultStoreRetention   = 7 * 24 * time.Hour
	DefaultLogMaxSize       = "10MB"
	DefaultLogMaxBackups    = 5
	DefaultKnowledgeBase    = "knowledge_base.conf"
)
