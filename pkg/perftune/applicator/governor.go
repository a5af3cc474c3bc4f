package applicator

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

const cpuDir = "sys/devices/system/cpu"

var cpuEntry = regexp.MustCompile(`^cpu[0-9]+$`)

// GovernorFiles returns every cpuN/cpufreq/scaling_governor under root,
// ordered by CPU number. cpufreq is commonly a symlink to a policy
// directory, so only the cpuN level is walked and the rest is stat'ed.
func GovernorFiles(root string) ([]string, error) {
	base := filepath.Join(root, cpuDir)
	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var (
		mu   sync.Mutex
		cpus []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == base {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if !cpuEntry.MatchString(d.Name()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		mu.Lock()
		cpus = append(cpus, path)
		mu.Unlock()
		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(cpus, func(i, j int) bool { return cpuIndex(cpus[i]) < cpuIndex(cpus[j]) })

	var files []string
	for _, cpu := range cpus {
		f := filepath.Join(cpu, "cpufreq", "scaling_governor")
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	return files, nil
}

func cpuIndex(path string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "cpu"))
	return n
}
