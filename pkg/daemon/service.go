// Package daemon runs the perftune monitoring and tuning pipeline as a
// long-lived service and exposes its health over a Unix socket.
package daemon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/perftune/pkg/daemon/broadcaster"
	"github.com/jamesainslie/perftune/pkg/daemon/metrics"
	"github.com/jamesainslie/perftune/pkg/daemon/store"
	"github.com/jamesainslie/perftune/pkg/daemon/watcher"
	"github.com/jamesainslie/perftune/pkg/perftune/applicator"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/detector"
	"github.com/jamesainslie/perftune/pkg/perftune/knowledge"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/monitor"
	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/source"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Data point labels written to the store.
const (
	LabelCPUPercent       = "cpu_percent"
	LabelMemoryPercent    = "memory_percent"
	LabelNetworkBytes     = "network_bytes"
	LabelBottleneckPrefix = "bottleneck."
	LabelDirectivePrefix  = "directive."
)

// pruneInterval bounds how often expired data points are removed.
const pruneInterval = time.Hour

// Snapshot is the outcome of one monitoring pass.
type Snapshot struct {
	Usage       types.ResourceUsage `json:"usage"`
	Bottlenecks []types.Bottleneck  `json:"bottlenecks,omitempty"`
	Actions     []optimizer.Action  `json:"actions,omitempty"`
}

// Status summarises a running service.
type Status struct {
	Running              bool          `json:"running"`
	StartTime            time.Time     `json:"start_time"`
	Uptime               time.Duration `json:"uptime"`
	Samples              uint64        `json:"samples"`
	KnowledgeBase        string        `json:"knowledge_base"`
	KnowledgeBaseEntries int           `json:"knowledge_base_entries"`
	Subscribers          int           `json:"subscribers"`
	Latest               Snapshot      `json:"latest"`
}

// Option configures a Service.
type Option func(*Service)

// WithSource replaces the configured metric source.
func WithSource(src source.MetricSource) Option {
	return func(s *Service) { s.src = src }
}

// WithApplicator replaces the kernel settings applicator.
func WithApplicator(a optimizer.ConfigApplicator) Option {
	return func(s *Service) { s.applicator = a }
}

// WithStore records data points into st. The caller owns st.
func WithStore(st *store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithMetrics exports observations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSnapshotHandler calls fn after every monitoring pass, on the
// sampling goroutine.
func WithSnapshotHandler(fn func(Snapshot)) Option {
	return func(s *Service) { s.onSnapshot = fn }
}

// WithBroadcaster fans bottlenecks out through b instead of a private one.
func WithBroadcaster(b *broadcaster.Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// Service wires monitor, detector, knowledge base, optimizer, store,
// broadcaster and metrics into one pipeline driven by the monitor callback.
type Service struct {
	cfg         *config.Config
	log         *logging.Logger
	src         source.MetricSource
	applicator  optimizer.ConfigApplicator
	detector    *detector.Detector
	monitor     *monitor.Monitor
	broadcaster *broadcaster.Broadcaster
	store       *store.Store
	metrics     *metrics.Metrics
	onSnapshot  func(Snapshot)

	// prev is the previous pass's snapshot. Only the sampling goroutine
	// touches it while the monitor runs; Start clears it beforehand.
	prev types.ResourceUsage

	mu        sync.RWMutex
	optimizer *optimizer.Optimizer
	latest    Snapshot
	samples   uint64
	startTime time.Time

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewService builds an idle service from cfg.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	th, err := cfg.DetectorThresholds()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg: cfg,
		log: logging.Get("daemon"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.src == nil {
		s.src, err = source.New(source.Kind(cfg.Source))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrValidation, err)
		}
	}
	if s.applicator == nil {
		s.applicator = applicator.New(
			applicator.WithRoot(cfg.Apply.Root),
			applicator.WithDryRun(cfg.Apply.DryRun),
		)
	}
	if s.broadcaster == nil {
		s.broadcaster = broadcaster.New()
	}

	s.detector, err = detector.New(th, nil)
	if err != nil {
		return nil, err
	}
	s.optimizer = optimizer.New(s.detector, knowledge.Load(cfg.KnowledgeBase), s.applicator)

	s.monitor, err = monitor.New(cfg.Interval, s.handle, monitor.WithSource(s.src))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the monitor and the background helpers: knowledge base
// watching, store retention and the metrics endpoint. It returns an error
// wrapping types.ErrLifecycle when already running.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.monitor.IsRunning() {
		return fmt.Errorf("%w: service already running", types.ErrLifecycle)
	}
	s.prev = types.ResourceUsage{}
	if err := s.monitor.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.startWatcher(ctx)

	if s.store != nil && s.cfg.Store.Retention > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retain(ctx)
		}()
	}

	if s.metrics != nil && s.cfg.Metrics.Addr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.metrics.Serve(ctx, s.cfg.Metrics.Addr); err != nil {
				s.log.Error("metrics endpoint failed", "addr", s.cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	s.log.Info("service started", "interval", s.cfg.Interval, "optimize", s.cfg.Optimize,
		"knowledge_base", s.cfg.KnowledgeBase)
	return nil
}

func (s *Service) startWatcher(ctx context.Context) {
	if s.cfg.KnowledgeBase == "" {
		return
	}
	w, err := watcher.New(0)
	if err != nil {
		s.log.Warn("knowledge base watcher unavailable", "error", err)
		return
	}
	if err := w.Watch(s.cfg.KnowledgeBase); err != nil {
		s.log.Warn("not watching knowledge base", "path", s.cfg.KnowledgeBase, "error", err)
		_ = w.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer w.Close()
		w.Run(ctx, func(string) { s.ReloadKnowledgeBase() })
	}()
}

// Stop halts the monitor, waits for the background helpers and reports
// whether the service was running. In-flight passes complete first.
func (s *Service) Stop() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	stopped := s.monitor.Stop()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()

	if stopped {
		s.log.Info("service stopped")
	}
	return stopped
}

// IsRunning reports whether the monitor is sampling.
func (s *Service) IsRunning() bool {
	return s.monitor.IsRunning()
}

// handle is the monitor callback: detect, fan out, optimize, record.
// Network usage is the throughput since the previous pass. The first pass
// after Start is reported but not optimized: its CPU figure is the
// average since boot.
func (s *Service) handle(u types.ResourceUsage) {
	prev := s.prev
	s.prev = u

	found := s.detector.DetectBetween(prev, u)
	for _, b := range found {
		s.broadcaster.Notify(b)
	}

	var actions []optimizer.Action
	if s.cfg.Optimize && len(found) > 0 && !prev.IsZero() {
		actions = s.currentOptimizer().Dispatch(found)
	}

	s.record(u, found, actions)

	if s.metrics != nil {
		s.metrics.ObserveUsage(u)
		s.metrics.ObserveBottlenecks(found)
		s.metrics.ObserveActions(actions)
	}

	snap := Snapshot{Usage: u, Bottlenecks: found, Actions: actions}
	s.mu.Lock()
	s.latest = snap
	s.samples++
	s.mu.Unlock()

	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
}

func (s *Service) record(u types.ResourceUsage, found []types.Bottleneck, actions []optimizer.Action) {
	if s.store == nil {
		return
	}
	s.store.CollectDataPoint(LabelCPUPercent, u.CPUPercent, "percent")
	s.store.CollectDataPoint(LabelMemoryPercent, u.MemoryPercent, "percent")
	s.store.CollectDataPoint(LabelNetworkBytes, float64(u.NetworkBytes()), "bytes")
	for _, b := range found {
		s.store.CollectDataPoint(BottleneckLabel(b.Type), b.Severity, "severity")
	}
	for _, a := range actions {
		s.store.CollectDataPoint(LabelDirectivePrefix+a.Category, 1, "count")
	}
}

// BottleneckLabel is the store label for a bottleneck type, e.g.
// "bottleneck.cpu".
func BottleneckLabel(t types.BottleneckType) string {
	return LabelBottleneckPrefix + strings.ToLower(t.String())
}

// retain prunes data points older than the retention window, once at
// start and then periodically.
func (s *Service) retain(ctx context.Context) {
	every := s.cfg.Store.Retention
	if every > pruneInterval {
		every = pruneInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		n, err := s.store.Prune(time.Now().Add(-s.cfg.Store.Retention))
		if err != nil {
			s.log.Warn("pruning data points failed", "error", err)
		} else if n > 0 {
			s.log.Debug("pruned data points", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReloadKnowledgeBase loads the knowledge base file again and swaps in a
// new optimizer built on it. Passes already dispatching keep the previous
// knowledge base.
func (s *Service) ReloadKnowledgeBase() {
	kb := knowledge.Load(s.cfg.KnowledgeBase)
	opt := optimizer.New(s.detector, kb, s.applicator)

	s.mu.Lock()
	s.optimizer = opt
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.KnowledgeBaseReloaded()
	}
	s.log.Info("knowledge base reloaded", "path", kb.Path(), "entries", kb.Len())
}

func (s *Service) currentOptimizer() *optimizer.Optimizer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.optimizer
}

// KnowledgeBase returns the knowledge base currently in use.
func (s *Service) KnowledgeBase() *knowledge.KnowledgeBase {
	return s.currentOptimizer().KnowledgeBase()
}

// Detector exposes the detector so thresholds can be changed at runtime.
func (s *Service) Detector() *detector.Detector {
	return s.detector
}

// Subscribe registers for bottleneck events at or above minSeverity.
func (s *Service) Subscribe(minSeverity float64, only ...types.BottleneckType) *broadcaster.Subscriber {
	return s.broadcaster.Subscribe(minSeverity, only...)
}

// Unsubscribe cancels a subscription.
func (s *Service) Unsubscribe(id string) {
	s.broadcaster.Unsubscribe(id)
}

// Latest returns the most recent snapshot.
func (s *Service) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Usage:       s.latest.Usage.Clone(),
		Bottlenecks: append([]types.Bottleneck(nil), s.latest.Bottlenecks...),
		Actions:     append([]optimizer.Action(nil), s.latest.Actions...),
	}
}

// Status summarises the service.
func (s *Service) Status() Status {
	latest := s.Latest()
	kb := s.KnowledgeBase()
	running := s.IsRunning()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:              running,
		StartTime:            s.startTime,
		Samples:              s.samples,
		KnowledgeBase:        kb.Path(),
		KnowledgeBaseEntries: kb.Len(),
		Subscribers:          s.broadcaster.SubscriberCount(),
		Latest:               latest,
	}
	if running && !s.startTime.IsZero() {
		st.Uptime = time.Since(s.startTime)
	}
	return st
}
