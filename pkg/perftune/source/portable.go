package source

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// PortableSource reads counters through gopsutil and works on every OS
// gopsutil supports.
type PortableSource struct{}

// NewPortableSource returns a gopsutil backed source.
func NewPortableSource() *PortableSource {
	return &PortableSource{}
}

// CPUTimes sums the aggregate cpu.TimesStat in seconds.
func (PortableSource) CPUTimes() (CPUTimes, error) {
	stats, err := cpu.Times(false)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("cpu times: %w", err)
	}
	if len(stats) == 0 {
		return CPUTimes{}, fmt.Errorf("cpu times: no data")
	}
	s := stats[0]
	idle := s.Idle + s.Iowait
	total := s.User + s.Nice + s.System + s.Idle + s.Iowait + s.Irq + s.Softirq + s.Steal
	return CPUTimes{Idle: idle, Total: total}, nil
}

// Memory returns total and total-minus-free bytes.
func (PortableSource) Memory() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("virtual memory: %w", err)
	}
	free := vm.Free
	if free > vm.Total {
		free = vm.Total
	}
	return vm.Total, vm.Total - free, nil
}

// Interfaces returns per-NIC counters.
func (PortableSource) Interfaces() ([]InterfaceCounters, error) {
	stats, err := net.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("net io counters: %w", err)
	}
	out := make([]InterfaceCounters, 0, len(stats))
	for _, s := range stats {
		out = append(out, InterfaceCounters{
			Name:      s.Name,
			RxBytes:   s.BytesRecv,
			TxBytes:   s.BytesSent,
			RxPackets: s.PacketsRecv,
			TxPackets: s.PacketsSent,
		})
	}
	return out, nil
}
