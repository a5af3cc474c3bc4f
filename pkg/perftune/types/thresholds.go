package types

import "fmt"

// Default detection thresholds.
const (
	DefaultCPUThreshold     = 80.0
	DefaultMemoryThreshold  = 90.0
	DefaultNetworkThreshold = uint64(1_000_000_000)
	DefaultStorageThreshold = uint64(500_000_000)
)

// Thresholds holds the trigger level for each resource. CPU and Memory are
// percentages; Network and Storage are byte counts.
type Thresholds struct {
	CPU     float64 `json:"cpu" yaml:"cpu"`
	Memory  float64 `json:"memory" yaml:"memory"`
	Network uint64  `json:"network" yaml:"network"`
	Storage uint64  `json:"storage" yaml:"storage"`
}

// DefaultThresholds returns 80% CPU, 90% memory, 1e9 network bytes and
// 5e8 storage bytes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPU:     DefaultCPUThreshold,
		Memory:  DefaultMemoryThreshold,
		Network: DefaultNetworkThreshold,
		Storage: DefaultStorageThreshold,
	}
}

// ValidatePercent rejects values outside [0, 100].
func ValidatePercent(name string, v float64) error {
	if v < 0 || v > 100 || v != v {
		return fmt.Errorf("%w: %s threshold %v outside [0,100]", ErrValidation, name, v)
	}
	return nil
}

// ValidateBytes rejects a zero byte threshold.
func ValidateBytes(name string, v uint64) error {
	if v == 0 {
		return fmt.Errorf("%w: %s threshold must be positive", ErrValidation, name)
	}
	return nil
}

// Validate checks every field.
func (t Thresholds) Validate() error {
	if err := ValidatePercent("cpu", t.CPU); err != nil {
		return err
	}
	if err := ValidatePercent("memory", t.Memory); err != nil {
		return err
	}
	if err := ValidateBytes("network", t.Network); err != nil {
		return err
	}
	return ValidateBytes("storage", t.Storage)
}
