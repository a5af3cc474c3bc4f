package profile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// parseCPUInfo returns the first "model name" (x86) or "Model"/"Hardware"
// (arm) value from /proc/cpuinfo content.
func parseCPUInfo(r io.Reader) string {
	var fallback string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "model name":
			return value
		case "Model", "Hardware":
			if fallback == "" {
				fallback = value
			}
		}
	}
	return fallback
}

// readLinks lists <sysRoot>/class/net, reading each link's speed file.
// Virtual links report no speed (or -1) and get 0.
func readLinks(sysRoot string) ([]Link, error) {
	dir := filepath.Join(sysRoot, "class", "net")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(entries))
	for _, e := range entries {
		l := Link{Name: e.Name()}
		if data, err := os.ReadFile(filepath.Join(dir, e.Name(), "speed")); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && n > 0 {
				l.SpeedMbps = n
			}
		}
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	return links, nil
}
