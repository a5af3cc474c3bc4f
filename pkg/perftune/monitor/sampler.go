package monitor

import (
	"time"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/source"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// sampler turns raw counters into snapshots. It is owned by one sampling
// goroutine and keeps the previous CPU reading between iterations.
type sampler struct {
	src  source.MetricSource
	log  *logging.Logger
	prev source.CPUTimes
}

// sample assembles one snapshot. Read failures leave the affected fields
// zeroed. The first CPU figure after start is measured against a zero
// baseline and so reflects the average since boot.
func (s *sampler) sample(now time.Time) types.ResourceUsage {
	u := types.ResourceUsage{Timestamp: now}

	if cpu, err := s.src.CPUTimes(); err != nil {
		s.log.Warn("reading cpu times", "err", err)
	} else {
		u.CPUPercent = source.CPUPercent(s.prev, cpu)
		s.prev = cpu
	}

	if total, used, err := s.src.Memory(); err != nil {
		s.log.Warn("reading memory", "err", err)
	} else {
		u.TotalMemory = total
		u.UsedMemory = used
		u.MemoryPercent = types.MemoryPercentOf(used, total)
	}

	ifaces, err := s.src.Interfaces()
	if err != nil {
		s.log.Warn("reading interfaces", "err", err)
		ifaces = nil
	}
	n := len(ifaces)
	u.Interfaces = make([]string, n)
	u.RxBytes = make([]uint64, n)
	u.TxBytes = make([]uint64, n)
	u.RxPackets = make([]uint64, n)
	u.TxPackets = make([]uint64, n)
	for i, c := range ifaces {
		u.Interfaces[i] = c.Name
		u.RxBytes[i] = c.RxBytes
		u.TxBytes[i] = c.TxBytes
		u.RxPackets[i] = c.RxPackets
		u.TxPackets[i] = c.TxPackets
	}

	s.log.Debug("sample",
		"cpu", u.CPUPercent,
		"mem", u.MemoryPercent,
		"interfaces", n)
	return u
}
