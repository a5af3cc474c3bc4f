package source

import "sync"

// Static is a MetricSource that returns values set by the caller. It is
// used for replaying recorded samples and in tests.
type Static struct {
	mu       sync.Mutex
	cpu      []CPUTimes
	total    uint64
	used     uint64
	ifaces   []InterfaceCounters
	cpuErr   error
	memErr   error
	ifaceErr error
}

// NewStatic returns a source with zero readings.
func NewStatic() *Static {
	return &Static{}
}

// SetCPUTimes queues readings returned by successive CPUTimes calls. The
// last reading repeats once the queue drains.
func (s *Static) SetCPUTimes(readings ...CPUTimes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu = append([]CPUTimes(nil), readings...)
}

// SetMemory sets the memory reading.
func (s *Static) SetMemory(total, used uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.used = total, used
}

// SetInterfaces sets the interface readings.
func (s *Static) SetInterfaces(ifaces ...InterfaceCounters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ifaces = append([]InterfaceCounters(nil), ifaces...)
}

// SetErrors makes the corresponding reads fail. Nil clears.
func (s *Static) SetErrors(cpu, mem, ifaces error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuErr, s.memErr, s.ifaceErr = cpu, mem, ifaces
}

func (s *Static) CPUTimes() (CPUTimes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpuErr != nil {
		return CPUTimes{}, s.cpuErr
	}
	if len(s.cpu) == 0 {
		return CPUTimes{}, nil
	}
	r := s.cpu[0]
	if len(s.cpu) > 1 {
		s.cpu = s.cpu[1:]
	}
	return r, nil
}

func (s *Static) Memory() (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memErr != nil {
		return 0, 0, s.memErr
	}
	return s.total, s.used, nil
}

func (s *Static) Interfaces() ([]InterfaceCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ifaceErr != nil {
		return nil, s.ifaceErr
	}
	return append([]InterfaceCounters(nil), s.ifaces...), nil
}
