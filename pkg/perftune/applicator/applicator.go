// Package applicator writes tuning directives to procfs and sysfs.
//
// A directive is a comma separated list of key=value settings:
//
//	cpu_governor=performance,hugepages=1024,vm.swappiness=10
//
// Known keys map to fixed kernel files; any dotted name is treated as a
// sysctl under /proc/sys. Multi-value settings use ':' in place of spaces,
// so tcp_rmem=4096:87380:6291456 writes "4096 87380 6291456".
package applicator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Setting keys with dedicated handling.
const (
	KeyCPUGovernor = "cpu_governor"
	KeyHugePages   = "hugepages"
	KeyIRQAffinity = "irq_affinity"
	KeyTCPRmem     = "tcp_rmem"
	KeyTCPWmem     = "tcp_wmem"
)

var fixedPaths = map[string]string{
	KeyHugePages:   "proc/sys/vm/nr_hugepages",
	KeyIRQAffinity: "proc/irq/default_smp_affinity",
	KeyTCPRmem:     "proc/sys/net/ipv4/tcp_rmem",
	KeyTCPWmem:     "proc/sys/net/ipv4/tcp_wmem",
}

var (
	sysctlName   = regexp.MustCompile(`^[a-z0-9_]+(\.[a-zA-Z0-9_-]+)+$`)
	governorName = regexp.MustCompile(`^[a-z_]+$`)
	hexMask      = regexp.MustCompile(`^[0-9a-fA-F,]+$`)
)

// ErrUnknownKey is recorded for settings with no known target.
var ErrUnknownKey = errors.New("unknown setting")

// Change is the outcome of one setting.
type Change struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Previous string `json:"previous,omitempty" yaml:"previous,omitempty"`
	Applied  bool   `json:"applied" yaml:"applied"`
	Err      error  `json:"-" yaml:"-"`
}

// Result collects the changes made for one directive.
type Result struct {
	Directive string   `json:"directive" yaml:"directive"`
	Changes   []Change `json:"changes" yaml:"changes"`
	Malformed []string `json:"malformed,omitempty" yaml:"malformed,omitempty"`
}

// Failed reports whether any setting failed or was malformed.
func (r Result) Failed() bool {
	if len(r.Malformed) > 0 {
		return true
	}
	for _, c := range r.Changes {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// Option configures a System applicator.
type Option func(*System)

// WithRoot prefixes every kernel path with root.
func WithRoot(root string) Option {
	return func(s *System) { s.root = root }
}

// WithDryRun logs intended writes without performing them.
func WithDryRun(dry bool) Option {
	return func(s *System) { s.dryRun = dry }
}

// System applies directives to the running kernel.
type System struct {
	root   string
	dryRun bool
	log    *logging.Logger

	// Writes are serialized so overlapping directives do not interleave.
	mu sync.Mutex
}

// New returns an applicator rooted at "/".
func New(opts ...Option) *System {
	s := &System{root: "/", log: logging.Get("applicator")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DryRun reports whether writes are suppressed.
func (s *System) DryRun() bool {
	return s.dryRun
}

// ApplyConfiguration applies directive and logs the outcome.
func (s *System) ApplyConfiguration(directive string) {
	res := s.Apply(directive)
	if res.Failed() {
		s.log.Warn("directive partially applied", "directive", directive)
	}
}

// Apply applies every setting in directive. Malformed items and failures
// are recorded and logged; remaining settings are still attempted.
func (s *System) Apply(directive string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Directive: directive}
	for _, item := range strings.Split(directive, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			s.log.Warn("malformed setting", "item", item)
			res.Malformed = append(res.Malformed, item)
			continue
		}
		res.Changes = append(res.Changes, s.applySetting(key, value)...)
	}
	return res
}

func (s *System) applySetting(key, value string) []Change {
	switch key {
	case KeyCPUGovernor:
		return s.applyGovernor(value)
	case KeyHugePages:
		if _, err := strconv.ParseUint(value, 10, 64); err != nil {
			return []Change{s.reject(key, value, err)}
		}
		return []Change{s.write(key, value, s.path(fixedPaths[key]))}
	case KeyIRQAffinity:
		if !hexMask.MatchString(value) {
			return []Change{s.reject(key, value, fmt.Errorf("not a hex cpu mask"))}
		}
		return []Change{s.write(key, value, s.path(fixedPaths[key]))}
	case KeyTCPRmem, KeyTCPWmem:
		v := spaced(value)
		if err := checkTriple(v); err != nil {
			return []Change{s.reject(key, value, err)}
		}
		return []Change{s.write(key, v, s.path(fixedPaths[key]))}
	}

	if sysctlName.MatchString(key) {
		return []Change{s.write(key, spaced(value), s.SysctlPath(key))}
	}

	s.log.Warn("skipping unknown setting", "key", key)
	return []Change{{Key: key, Value: value, Err: fmt.Errorf("%w: %s", ErrUnknownKey, key)}}
}

func (s *System) applyGovernor(value string) []Change {
	if !governorName.MatchString(value) {
		return []Change{s.reject(KeyCPUGovernor, value, fmt.Errorf("invalid governor name"))}
	}
	files, err := GovernorFiles(s.root)
	if err != nil {
		s.log.Warn("discovering cpufreq governors", "err", err)
		return []Change{{Key: KeyCPUGovernor, Value: value, Err: err}}
	}
	if len(files) == 0 {
		err := fmt.Errorf("no cpufreq scaling_governor files under %s", s.path(cpuDir))
		s.log.Warn("cpu frequency scaling unavailable", "err", err)
		return []Change{{Key: KeyCPUGovernor, Value: value, Err: err}}
	}
	changes := make([]Change, 0, len(files))
	for _, f := range files {
		changes = append(changes, s.write(KeyCPUGovernor, value, f))
	}
	return changes
}

func (s *System) reject(key, value string, err error) Change {
	err = fmt.Errorf("%w: %s=%s: %w", types.ErrValidation, key, value, err)
	s.log.Warn("rejecting setting", "key", key, "value", value, "err", err)
	return Change{Key: key, Value: value, Err: err}
}

// write replaces the content of an existing kernel file. Kernel tunables
// always exist, so a missing file is an error rather than created.
func (s *System) write(key, value, path string) Change {
	c := Change{Key: key, Value: value, Path: path}
	if prev, err := os.ReadFile(path); err == nil {
		c.Previous = strings.TrimSpace(string(prev))
	}

	if s.dryRun {
		s.log.Info("dry run: would write", "path", path, "value", value, "previous", c.Previous)
		return c
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		c.Err = fmt.Errorf("%w: opening %s: %w", types.ErrTransientIO, path, err)
		s.log.Error("applying setting", "key", key, "err", c.Err)
		return c
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		c.Err = fmt.Errorf("%w: writing %s: %w", types.ErrTransientIO, path, werr)
		s.log.Error("applying setting", "key", key, "err", c.Err)
		return c
	}

	c.Applied = true
	s.log.Info("setting applied", "key", key, "value", value, "path", path)
	return c
}

func (s *System) path(rel string) string {
	return filepath.Join(s.root, rel)
}

// SysctlPath maps a dotted sysctl name to its /proc/sys file.
func (s *System) SysctlPath(name string) string {
	return s.path(filepath.Join("proc/sys", strings.ReplaceAll(name, ".", "/")))
}

// Current reads the present value of a setting, for display.
func (s *System) Current(key string) (string, error) {
	var path string
	switch {
	case key == KeyCPUGovernor:
		files, err := GovernorFiles(s.root)
		if err != nil {
			return "", err
		}
		if len(files) == 0 {
			return "", fmt.Errorf("no cpufreq governors")
		}
		path = files[0]
	case fixedPaths[key] != "":
		path = s.path(fixedPaths[key])
	case sysctlName.MatchString(key):
		path = s.SysctlPath(key)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.Join(strings.Fields(string(data)), " "), nil
}

func spaced(v string) string {
	return strings.ReplaceAll(v, ":", " ")
}

func checkTriple(v string) error {
	fields := strings.Fields(v)
	if len(fields) != 3 {
		return fmt.Errorf("want min:default:max, got %d values", len(fields))
	}
	for _, f := range fields {
		if _, err := strconv.ParseUint(f, 10, 64); err != nil {
			return err
		}
	}
	return nil
}
