// Package source reads raw host counters for the resource monitor.
//
// A MetricSource returns cumulative counters only; turning CPU ticks into a
// utilization percentage needs two readings and is left to the caller via
// CPUPercent.
package source

import (
	"fmt"
	"runtime"
	"strings"
)

// CPUTimes is a cumulative CPU time reading. Units are whatever the
// platform reports (ticks or seconds); only ratios of deltas are used.
type CPUTimes struct {
	Idle  float64
	Total float64
}

// InterfaceCounters holds cumulative counters for one network interface.
type InterfaceCounters struct {
	Name      string
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
}

// MetricSource is polled synchronously by the monitor once per iteration.
type MetricSource interface {
	// CPUTimes returns aggregate cumulative CPU times.
	CPUTimes() (CPUTimes, error)

	// Memory returns total and used physical memory in bytes.
	Memory() (total, used uint64, err error)

	// Interfaces returns counters for every interface, in a stable order.
	Interfaces() ([]InterfaceCounters, error)
}

// CPUPercent returns busy time between two readings as a percentage.
// It returns 0 when no time elapsed or the counters went backwards.
func CPUPercent(prev, curr CPUTimes) float64 {
	dTotal := curr.Total - prev.Total
	dIdle := curr.Idle - prev.Idle
	if dTotal <= 0 || dIdle < 0 {
		return 0
	}
	pct := 100 * (1 - dIdle/dTotal)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Kind selects a MetricSource implementation.
type Kind string

// Supported kinds.
const (
	KindAuto     Kind = "auto"
	KindProc     Kind = "proc"
	KindPortable Kind = "portable"
)

// New returns the source for kind. KindAuto picks the /proc reader on Linux
// and the portable reader elsewhere.
func New(kind Kind) (MetricSource, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindAuto, "":
		return Default(), nil
	case KindProc:
		if runtime.GOOS != "linux" {
			return nil, fmt.Errorf("source %q is only available on linux", kind)
		}
		return NewProcSource(), nil
	case KindPortable:
		return NewPortableSource(), nil
	}
	return nil, fmt.Errorf("unknown metric source %q", kind)
}
