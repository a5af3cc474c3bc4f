// Package metrics exports resource usage, bottlenecks and applied tuning
// directives in the Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

const namespace = "perftune"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cpuPercent    prometheus.Gauge
	memoryPercent prometheus.Gauge
	memoryUsed    prometheus.Gauge
	networkBytes  prometheus.Gauge
	samples       prometheus.Counter

	severity    *prometheus.GaugeVec
	bottlenecks *prometheus.CounterVec
	directives  *prometheus.CounterVec
	kbReloads   prometheus.Counter
}

// New registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.cpuPercent = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resource",
		Name:      "cpu_percent",
		Help:      "CPU utilisation over the last sampling interval",
	})
	m.memoryPercent = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resource",
		Name:      "memory_percent",
		Help:      "Physical memory in use as a percentage of total",
	})
	m.memoryUsed = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resource",
		Name:      "memory_used_bytes",
		Help:      "Physical memory in use",
	})
	m.networkBytes = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resource",
		Name:      "network_bytes",
		Help:      "Cumulative rx+tx bytes summed over all interfaces",
	})
	m.samples = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "samples_total",
		Help:      "Resource usage snapshots taken",
	})

	m.severity = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bottleneck",
		Name:      "severity",
		Help:      "Severity of the most recent sample per bottleneck type, 0 when absent",
	}, []string{"type"})
	m.bottlenecks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bottleneck",
		Name:      "detected_total",
		Help:      "Bottlenecks detected per type",
	}, []string{"type"})
	m.directives = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "optimizer",
		Name:      "directives_total",
		Help:      "Knowledge base directives dispatched per category",
	}, []string{"category"})
	m.kbReloads = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "knowledge_base",
		Name:      "reloads_total",
		Help:      "Knowledge base reloads after file changes",
	})

	// Expose every type from the start so absent series read as 0.
	for _, t := range types.AllBottleneckTypes {
		m.severity.WithLabelValues(t.String()).Set(0)
		m.bottlenecks.WithLabelValues(t.String())
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveUsage records a snapshot.
func (m *Metrics) ObserveUsage(u types.ResourceUsage) {
	m.cpuPercent.Set(u.CPUPercent)
	m.memoryPercent.Set(u.MemoryPercent)
	m.memoryUsed.Set(float64(u.UsedMemory))
	m.networkBytes.Set(float64(u.NetworkBytes()))
	m.samples.Inc()
}

// ObserveBottlenecks records one detection pass. Types missing from found
// have their severity reset to 0.
func (m *Metrics) ObserveBottlenecks(found []types.Bottleneck) {
	seen := make(map[types.BottleneckType]float64, len(found))
	for _, b := range found {
		seen[b.Type] = b.Severity
		m.bottlenecks.WithLabelValues(b.Type.String()).Inc()
	}
	for _, t := range types.AllBottleneckTypes {
		m.severity.WithLabelValues(t.String()).Set(seen[t])
	}
}

// ObserveActions counts dispatched directives.
func (m *Metrics) ObserveActions(actions []optimizer.Action) {
	for _, a := range actions {
		m.directives.WithLabelValues(a.Category).Inc()
	}
}

// KnowledgeBaseReloaded counts a knowledge base swap.
func (m *Metrics) KnowledgeBaseReloaded() {
	m.kbReloads.Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Get("metrics").Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
