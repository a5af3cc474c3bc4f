// Package detector classifies resource usage into bottleneck records by
// comparing each metric against a configurable threshold.
package detector

import (
	"sync"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Callback is invoked synchronously for every detected bottleneck.
type Callback func(types.Bottleneck)

type rule struct {
	description    string
	resourceName   string
	recommendation string
}

var rules = map[types.BottleneckType]rule{
	types.CPU: {
		description:    "High CPU usage detected",
		resourceName:   "CPU",
		recommendation: "Consider optimizing CPU-intensive operations or upgrading CPU",
	},
	types.Memory: {
		description:    "High memory usage detected",
		resourceName:   "Memory",
		recommendation: "Consider optimizing memory usage, enabling huge pages, or adding more memory",
	},
	types.Network: {
		description:    "High network usage detected",
		resourceName:   "Network",
		recommendation: "Consider optimizing network operations, increasing TCP buffer sizes, or upgrading network hardware",
	},
	types.Storage: {
		description:    "High storage I/O usage detected",
		resourceName:   "Storage",
		recommendation: "Consider optimizing I/O patterns, using multiple queues, or upgrading storage devices",
	},
}

// Detector holds thresholds and an optional callback. Detection is
// read-only with respect to the detector, so concurrent Detect calls and
// setter calls may interleave freely.
type Detector struct {
	mu         sync.RWMutex
	thresholds types.Thresholds
	callback   Callback
	log        *logging.Logger
}

// New validates th and returns a detector. cb may be nil.
func New(th types.Thresholds, cb Callback) (*Detector, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		thresholds: th,
		callback:   cb,
		log:        logging.Get("detector"),
	}, nil
}

// NewDefault returns a detector with DefaultThresholds and no callback.
func NewDefault() *Detector {
	d, _ := New(types.DefaultThresholds(), nil)
	return d
}

// Thresholds returns a copy of the current thresholds.
func (d *Detector) Thresholds() types.Thresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.thresholds
}

// SetCPUThreshold sets the CPU trigger percentage in [0,100].
func (d *Detector) SetCPUThreshold(v float64) error {
	if err := types.ValidatePercent("cpu", v); err != nil {
		return err
	}
	d.mu.Lock()
	d.thresholds.CPU = v
	d.mu.Unlock()
	return nil
}

// SetMemoryThreshold sets the memory trigger percentage in [0,100].
func (d *Detector) SetMemoryThreshold(v float64) error {
	if err := types.ValidatePercent("memory", v); err != nil {
		return err
	}
	d.mu.Lock()
	d.thresholds.Memory = v
	d.mu.Unlock()
	return nil
}

// SetNetworkThreshold sets the network trigger in bytes.
func (d *Detector) SetNetworkThreshold(v uint64) error {
	if err := types.ValidateBytes("network", v); err != nil {
		return err
	}
	d.mu.Lock()
	d.thresholds.Network = v
	d.mu.Unlock()
	return nil
}

// SetStorageThreshold sets the storage trigger in bytes.
func (d *Detector) SetStorageThreshold(v uint64) error {
	if err := types.ValidateBytes("storage", v); err != nil {
		return err
	}
	d.mu.Lock()
	d.thresholds.Storage = v
	d.mu.Unlock()
	return nil
}

// SetThresholds replaces all four thresholds at once, or none on error.
func (d *Detector) SetThresholds(th types.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.thresholds = th
	d.mu.Unlock()
	return nil
}

// SetCallback replaces the callback. Nil disables it.
func (d *Detector) SetCallback(cb Callback) {
	d.mu.Lock()
	d.callback = cb
	d.mu.Unlock()
}

// Detect evaluates each metric independently and returns the bottlenecks
// found, in the order CPU, MEMORY, NETWORK, STORAGE. A metric at or above
// its threshold fires; storage additionally requires non-zero usage.
func (d *Detector) Detect(cpu, memory float64, network, storage uint64) []types.Bottleneck {
	d.mu.RLock()
	th := d.thresholds
	cb := d.callback
	d.mu.RUnlock()

	var found []types.Bottleneck
	add := func(t types.BottleneckType, usage, severity float64) {
		r := rules[t]
		b, err := types.NewBottleneck(t, r.description, severity, r.resourceName, usage, r.recommendation)
		if err != nil {
			d.log.Error("building bottleneck", "type", t, "err", err)
			return
		}
		d.log.Info("bottleneck detected",
			"type", t,
			"usage", types.FormatUsage(t, usage),
			"severity", severity)
		found = append(found, b)
		if cb != nil {
			cb(b)
		}
	}

	if cpu >= th.CPU {
		add(types.CPU, cpu, PercentSeverity(cpu, th.CPU))
	}
	if memory >= th.Memory {
		add(types.Memory, memory, PercentSeverity(memory, th.Memory))
	}
	if network >= th.Network {
		add(types.Network, float64(network), ByteSeverity(network, th.Network))
	}
	if storage > 0 && storage >= th.Storage {
		add(types.Storage, float64(storage), ByteSeverity(storage, th.Storage))
	}
	return found
}

// DetectUsage runs Detect on a snapshot. Network usage is the sum of rx and
// tx bytes over every interface; storage is 0 because snapshots carry no
// storage counter.
func (d *Detector) DetectUsage(u types.ResourceUsage) []types.Bottleneck {
	return d.Detect(u.CPUPercent, u.MemoryPercent, u.NetworkBytes(), 0)
}

// DetectBetween runs Detect on curr with network usage taken as the
// throughput since prev, in bytes per second. Use it for live samples,
// whose interface counters are cumulative since boot. An empty prev
// yields a network usage of 0.
func (d *Detector) DetectBetween(prev, curr types.ResourceUsage) []types.Bottleneck {
	return d.Detect(curr.CPUPercent, curr.MemoryPercent, types.NetworkRate(prev, curr), 0)
}

// PercentSeverity maps usage in [threshold,100] onto [0,1]. A threshold of
// exactly 100 yields 1.
func PercentSeverity(usage, threshold float64) float64 {
	if threshold >= 100 {
		return 1
	}
	return clamp((usage - threshold) / (100 - threshold))
}

// ByteSeverity is the relative overshoot (usage-threshold)/threshold,
// clamped to [0,1].
func ByteSeverity(usage, threshold uint64) float64 {
	if threshold == 0 {
		return 1
	}
	return clamp((float64(usage) - float64(threshold)) / float64(threshold))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
