// Package output renders perftune reports in the formats offered by the
// CLI: pretty, plain, json, jsonl and yaml.
//
//	f, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/profile"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Report is everything one detection cycle produced. Sections that are
// empty are omitted by every formatter.
type Report struct {
	Time        time.Time              `json:"time" yaml:"time"`
	Usage       *types.ResourceUsage   `json:"usage,omitempty" yaml:"usage,omitempty"`
	Thresholds  *types.Thresholds      `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Bottlenecks []types.Bottleneck     `json:"bottlenecks" yaml:"bottlenecks"`
	Actions     []optimizer.Action     `json:"actions,omitempty" yaml:"actions,omitempty"`
	DryRun      bool                   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Profile     *profile.SystemProfile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Formatter renders a Report.
type Formatter interface {
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]FormatterFactory{}}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available lists registered names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a factory to DefaultRegistry.
func Register(name string, factory FormatterFactory) { DefaultRegistry.Register(name, factory) }

// Get looks up name in DefaultRegistry.
func Get(name string) (Formatter, error) { return DefaultRegistry.Get(name) }

// Available lists DefaultRegistry names.
func Available() []string { return DefaultRegistry.Available() }
