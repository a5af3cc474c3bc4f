// Package optimizer turns detected bottlenecks into tuning directives from
// the knowledge base and hands them to a ConfigApplicator.
package optimizer

import (
	"github.com/jamesainslie/perftune/pkg/perftune/detector"
	"github.com/jamesainslie/perftune/pkg/perftune/knowledge"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// ConfigApplicator applies one directive string, e.g.
// "cpu_governor=performance,hugepages=1024". Failures are the
// applicator's to log; the optimizer does not retry.
type ConfigApplicator interface {
	ApplyConfiguration(directive string)
}

// ApplicatorFunc adapts a function to ConfigApplicator.
type ApplicatorFunc func(directive string)

// ApplyConfiguration calls f.
func (f ApplicatorFunc) ApplyConfiguration(directive string) { f(directive) }

// Action records one directive that was dispatched.
type Action struct {
	Bottleneck types.Bottleneck `json:"bottleneck" yaml:"bottleneck"`
	Category   string           `json:"category" yaml:"category"`
	Directive  string           `json:"directive" yaml:"directive"`
}

// Optimizer wires a detector, a knowledge base and an applicator. The
// detector and knowledge base are shared, not owned.
type Optimizer struct {
	detector   *detector.Detector
	kb         *knowledge.KnowledgeBase
	applicator ConfigApplicator
	log        *logging.Logger
}

// New returns an optimizer. A nil applicator discards directives.
func New(d *detector.Detector, kb *knowledge.KnowledgeBase, a ConfigApplicator) *Optimizer {
	if a == nil {
		a = ApplicatorFunc(func(string) {})
	}
	return &Optimizer{
		detector:   d,
		kb:         kb,
		applicator: a,
		log:        logging.Get("optimizer"),
	}
}

// KnowledgeBase returns the knowledge base in use.
func (o *Optimizer) KnowledgeBase() *knowledge.KnowledgeBase {
	return o.kb
}

// OptimizeConfiguration detects bottlenecks (storage fixed at 0) and
// dispatches the directive for each one that has a non-empty entry, in
// detection order. It returns what was dispatched.
func (o *Optimizer) OptimizeConfiguration(cpu, memory float64, network uint64) []Action {
	return o.dispatch(o.detector.Detect(cpu, memory, network, 0))
}

// OptimizeUsage is OptimizeConfiguration for a monitor snapshot.
func (o *Optimizer) OptimizeUsage(u types.ResourceUsage) []Action {
	return o.dispatch(o.detector.DetectUsage(u))
}

// Dispatch applies directives for bottlenecks the caller already detected.
func (o *Optimizer) Dispatch(found []types.Bottleneck) []Action {
	return o.dispatch(found)
}

func (o *Optimizer) dispatch(found []types.Bottleneck) []Action {
	var actions []Action
	for _, b := range found {
		key, ok := knowledge.CategoryKey(b.Type)
		if !ok {
			continue
		}
		directive := o.kb.GetConfigValue(key)
		if directive == "" {
			o.log.Debug("no directive for bottleneck", "category", key)
			continue
		}
		o.log.Info("applying directive", "category", key, "directive", directive, "severity", b.Severity)
		o.applicator.ApplyConfiguration(directive)
		actions = append(actions, Action{Bottleneck: b, Category: key, Directive: directive})
	}
	return actions
}
