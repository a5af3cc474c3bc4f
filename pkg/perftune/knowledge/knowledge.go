// Package knowledge loads the tuning knowledge base: a flat key=value file
// mapping bottleneck categories to tuning directives.
//
//	# comment
//	cpu_bottleneck=cpu_governor=performance
//	memory_bottleneck=hugepages=1024   # inline comment
//
// A KnowledgeBase is immutable once loaded. To pick up edits, load a new one
// and swap it in.
package knowledge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Category keys looked up for each bottleneck type.
const (
	KeyCPU     = "cpu_bottleneck"
	KeyMemory  = "memory_bottleneck"
	KeyNetwork = "network_bottleneck"
	KeyStorage = "storage_bottleneck"
)

// CategoryKey maps a bottleneck type to its knowledge-base key.
func CategoryKey(t types.BottleneckType) (string, bool) {
	switch t {
	case types.CPU:
		return KeyCPU, true
	case types.Memory:
		return KeyMemory, true
	case types.Network:
		return KeyNetwork, true
	case types.Storage:
		return KeyStorage, true
	}
	return "", false
}

// KnowledgeBase is a read-only key to directive mapping.
type KnowledgeBase struct {
	path    string
	entries map[string]string
}

// Load reads path. An unreadable file is logged and yields an empty
// knowledge base, so detection keeps working without recommendations.
func Load(path string) *KnowledgeBase {
	log := logging.Get("knowledge")

	f, err := os.Open(path)
	if err != nil {
		log.Warn("knowledge base unavailable", "path", path, "err", err)
		return &KnowledgeBase{path: path, entries: map[string]string{}}
	}
	defer func() { _ = f.Close() }()

	kb, err := Parse(f)
	if err != nil {
		log.Warn("knowledge base read failed", "path", path, "err", err)
	}
	kb.path = path
	log.Info("knowledge base loaded", "path", path, "entries", kb.Len())
	return kb
}

// Parse reads key=value lines from r. Lines have no length limit. On a
// read error it returns the entries parsed so far together with the error.
func Parse(r io.Reader) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{entries: map[string]string{}}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if key, value, ok := parseLine(line); ok {
			kb.entries[key] = value
		}
		if errors.Is(err, io.EOF) {
			return kb, nil
		}
		if err != nil {
			return kb, fmt.Errorf("%w: %w", types.ErrTransientIO, err)
		}
	}
}

// FromMap builds a knowledge base from an in-memory mapping. Keys and
// values are trimmed; empty keys are dropped.
func FromMap(m map[string]string) *KnowledgeBase {
	kb := &KnowledgeBase{entries: make(map[string]string, len(m))}
	for k, v := range m {
		k = trim(k)
		if k != "" {
			kb.entries[k] = trim(v)
		}
	}
	return kb
}

func parseLine(line string) (string, string, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = trim(key)
	if key == "" {
		return "", "", false
	}
	return key, trim(value), true
}

func trim(s string) string {
	return strings.Trim(s, " \t\r\n")
}

// GetConfigValue returns the directive for key, or "" when there is none.
func (kb *KnowledgeBase) GetConfigValue(key string) string {
	if kb == nil {
		return ""
	}
	return kb.entries[key]
}

// Lookup is GetConfigValue with an explicit presence flag.
func (kb *KnowledgeBase) Lookup(key string) (string, bool) {
	if kb == nil {
		return "", false
	}
	v, ok := kb.entries[key]
	return v, ok
}

// Keys returns every key in sorted order.
func (kb *KnowledgeBase) Keys() []string {
	if kb == nil {
		return nil
	}
	keys := make([]string, 0, len(kb.entries))
	for k := range kb.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (kb *KnowledgeBase) Len() int {
	if kb == nil {
		return 0
	}
	return len(kb.entries)
}

// Path returns the file the knowledge base was loaded from, if any.
func (kb *KnowledgeBase) Path() string {
	if kb == nil {
		return ""
	}
	return kb.path
}

// WriteTo serializes the entries in key order, one key=value per line.
func (kb *KnowledgeBase) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, k := range kb.Keys() {
		n, err := fmt.Fprintf(w, "%s=%s\n", k, kb.entries[k])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
