// Package monitor samples host resource usage on a fixed interval in a
// background goroutine and publishes the latest snapshot.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/source"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Callback receives a private copy of each published snapshot. It runs on
// the sampling goroutine, so a slow callback delays the next sample. It
// must not call Start or Stop on the monitor that invokes it.
type Callback func(types.ResourceUsage)

// Option configures a Monitor.
type Option func(*Monitor)

// WithSource replaces the platform default MetricSource.
func WithSource(src source.MetricSource) Option {
	return func(m *Monitor) { m.src = src }
}

// Monitor is the resource sampling state machine. It is Idle after New and
// Running between Start and Stop. All methods are safe for concurrent use.
type Monitor struct {
	src source.MetricSource
	log *logging.Logger

	// lifecycle serializes Start and Stop, including Stop's wait for the
	// sampling goroutine to exit.
	lifecycle sync.Mutex

	mu       sync.Mutex
	latest   types.ResourceUsage
	interval time.Duration
	callback Callback
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// New returns an idle monitor. The interval must be positive; cb may be nil.
func New(interval time.Duration, cb Callback, opts ...Option) (*Monitor, error) {
	if err := validateInterval(interval); err != nil {
		return nil, err
	}
	m := &Monitor{
		interval: interval,
		callback: cb,
		log:      logging.Get("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.src == nil {
		m.src = source.Default()
	}
	return m, nil
}

func validateInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", types.ErrValidation, d)
	}
	return nil
}

// Start launches the sampling goroutine. It returns an error wrapping
// types.ErrLifecycle when the monitor is already running; the running loop
// is unaffected.
func (m *Monitor) Start() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("%w: monitor already running", types.ErrLifecycle)
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.run(m.stop, m.done)

	m.log.Info("monitor started", "interval", m.interval)
	return nil
}

// Stop signals the sampling goroutine and waits for it to exit. An
// in-flight iteration is allowed to finish. It returns false when the
// monitor was not running. A concurrent Start waits until the previous
// goroutine is gone.
func (m *Monitor) Stop() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	close(m.stop)
	done := m.done
	m.running = false
	m.mu.Unlock()

	<-done
	m.log.Info("monitor stopped")
	return true
}

// IsRunning reports whether the sampling goroutine is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetLatestUsage returns a copy of the most recent snapshot, or the zero
// value if nothing has been sampled yet.
func (m *Monitor) GetLatestUsage() types.ResourceUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest.Clone()
}

// SetInterval changes the sampling period from the next iteration on.
func (m *Monitor) SetInterval(d time.Duration) error {
	if err := validateInterval(d); err != nil {
		return err
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	return nil
}

// Interval returns the current sampling period.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// SetCallback replaces the callback from the next iteration on. Nil
// disables it.
func (m *Monitor) SetCallback(cb Callback) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s := &sampler{src: m.src, log: m.log}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		started := time.Now()
		usage := s.sample(started)

		m.mu.Lock()
		m.latest = usage
		cb := m.callback
		interval := m.interval
		m.mu.Unlock()

		if cb != nil {
			m.invoke(cb, usage.Clone())
		}

		// An overrun starts the next iteration at once; missed ticks are
		// not replayed.
		wait := interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) invoke(cb Callback, usage types.ResourceUsage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor callback panicked", "panic", r)
		}
	}()
	cb(usage)
}
