// Package types defines the shared data model for perftune: resource usage
// snapshots, bottleneck records, detection thresholds and the error taxonomy.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ResourceUsage is a point-in-time view of host utilization.
//
// The per-interface slices are parallel: index i of RxBytes, TxBytes,
// RxPackets and TxPackets all describe Interfaces[i]. Network counters are
// cumulative since boot, not rates.
type ResourceUsage struct {
	CPUPercent    float64   `json:"cpu_percent" yaml:"cpu_percent"`
	TotalMemory   uint64    `json:"total_memory" yaml:"total_memory"`
	UsedMemory    uint64    `json:"used_memory" yaml:"used_memory"`
	MemoryPercent float64   `json:"memory_percent" yaml:"memory_percent"`
	Interfaces    []string  `json:"interfaces" yaml:"interfaces"`
	RxBytes       []uint64  `json:"rx_bytes" yaml:"rx_bytes"`
	TxBytes       []uint64  `json:"tx_bytes" yaml:"tx_bytes"`
	RxPackets     []uint64  `json:"rx_packets" yaml:"rx_packets"`
	TxPackets     []uint64  `json:"tx_packets" yaml:"tx_packets"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// MemoryPercentOf returns used/total as a percentage capped at 100.
// A zero total yields 0.
func MemoryPercentOf(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(used) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// NetworkBytes returns the sum of received and transmitted bytes over all
// interfaces.
func (u ResourceUsage) NetworkBytes() uint64 {
	var sum uint64
	for i := range u.Interfaces {
		if i < len(u.RxBytes) {
			sum += u.RxBytes[i]
		}
		if i < len(u.TxBytes) {
			sum += u.TxBytes[i]
		}
	}
	return sum
}

// NetworkRate returns combined rx and tx throughput in bytes per second
// between two snapshots of the same host. Interfaces are matched by name;
// ones missing from prev or whose counters went backwards contribute
// nothing. It returns 0 when prev is empty or the timestamps do not
// advance.
func NetworkRate(prev, curr ResourceUsage) uint64 {
	elapsed := curr.Timestamp.Sub(prev.Timestamp).Seconds()
	if prev.Timestamp.IsZero() || elapsed <= 0 {
		return 0
	}

	before := make(map[string]int, len(prev.Interfaces))
	for i, name := range prev.Interfaces {
		before[name] = i
	}
	var moved uint64
	for i, name := range curr.Interfaces {
		j, ok := before[name]
		if !ok {
			continue
		}
		moved += counterDelta(prev.RxBytes, curr.RxBytes, j, i)
		moved += counterDelta(prev.TxBytes, curr.TxBytes, j, i)
	}
	return uint64(float64(moved) / elapsed)
}

func counterDelta(prev, curr []uint64, j, i int) uint64 {
	if j >= len(prev) || i >= len(curr) || curr[i] < prev[j] {
		return 0
	}
	return curr[i] - prev[j]
}

// Clone returns a deep copy so callers never share slice backing arrays
// with the producer.
func (u ResourceUsage) Clone() ResourceUsage {
	c := u
	c.Interfaces = cloneSlice(u.Interfaces)
	c.RxBytes = cloneSlice(u.RxBytes)
	c.TxBytes = cloneSlice(u.TxBytes)
	c.RxPackets = cloneSlice(u.RxPackets)
	c.TxPackets = cloneSlice(u.TxPackets)
	return c
}

// IsZero reports whether no sample has been recorded.
func (u ResourceUsage) IsZero() bool {
	return u.Timestamp.IsZero() && u.TotalMemory == 0 && len(u.Interfaces) == 0 && u.CPUPercent == 0
}

// Validate checks that the per-interface slices line up.
func (u ResourceUsage) Validate() error {
	n := len(u.Interfaces)
	for name, l := range map[string]int{
		"rx_bytes":   len(u.RxBytes),
		"tx_bytes":   len(u.TxBytes),
		"rx_packets": len(u.RxPackets),
		"tx_packets": len(u.TxPackets),
	} {
		if l != n {
			return fmt.Errorf("%w: %s has %d entries for %d interfaces", ErrValidation, name, l, n)
		}
	}
	return nil
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// BottleneckType classifies which resource is saturated.
type BottleneckType int

// Bottleneck types in detection order.
const (
	CPU BottleneckType = iota
	Memory
	Network
	Storage
)

// AllBottleneckTypes lists every type in detection order.
var AllBottleneckTypes = []BottleneckType{CPU, Memory, Network, Storage}

// String returns the upper-case name of the type.
func (t BottleneckType) String() string {
	switch t {
	case CPU:
		return "CPU"
	case Memory:
		return "MEMORY"
	case Network:
		return "NETWORK"
	case Storage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

// ParseBottleneckType parses a type name case-insensitively.
func ParseBottleneckType(s string) (BottleneckType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CPU":
		return CPU, nil
	case "MEMORY", "MEM":
		return Memory, nil
	case "NETWORK", "NET":
		return Network, nil
	case "STORAGE", "DISK", "IO":
		return Storage, nil
	default:
		return CPU, fmt.Errorf("%w: unknown bottleneck type %q", ErrValidation, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t BottleneckType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BottleneckType) UnmarshalText(b []byte) error {
	parsed, err := ParseBottleneckType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Bottleneck describes one detected saturation condition.
type Bottleneck struct {
	Type           BottleneckType `json:"type" yaml:"type"`
	Description    string         `json:"description" yaml:"description"`
	Severity       float64        `json:"severity" yaml:"severity"`
	ResourceName   string         `json:"resource_name" yaml:"resource_name"`
	ResourceUsage  float64        `json:"resource_usage" yaml:"resource_usage"`
	Recommendation string         `json:"recommendation" yaml:"recommendation"`
}

// NewBottleneck builds a record, rejecting severities outside [0, 1].
func NewBottleneck(t BottleneckType, description string, severity float64,
	resourceName string, usage float64, recommendation string,
) (Bottleneck, error) {
	if severity < 0 || severity > 1 || severity != severity {
		return Bottleneck{}, fmt.Errorf("%w: severity %v outside [0,1]", ErrValidation, severity)
	}
	return Bottleneck{
		Type:           t,
		Description:    description,
		Severity:       severity,
		ResourceName:   resourceName,
		ResourceUsage:  usage,
		Recommendation: recommendation,
	}, nil
}

// String formats the record for log lines and plain output.
func (b Bottleneck) String() string {
	return fmt.Sprintf("%s bottleneck: %s (severity %.2f, usage %s)",
		b.Type, b.Description, b.Severity, FormatUsage(b.Type, b.ResourceUsage))
}
