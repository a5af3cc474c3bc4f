package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcSource reads counters from a procfs tree. Memory comes from
// sysinfo(2) when reading the live /proc, and from meminfo when the
// root is overridden.
type ProcSource struct {
	root   string
	memory func() (uint64, uint64, error)
}

// ProcOption configures a ProcSource.
type ProcOption func(*ProcSource)

// WithProcRoot reads <root>/proc instead of /proc.
func WithProcRoot(root string) ProcOption {
	return func(p *ProcSource) {
		p.root = root
		p.memory = p.meminfo
	}
}

// NewProcSource returns a reader for the live /proc.
func NewProcSource(opts ...ProcOption) *ProcSource {
	p := &ProcSource{root: "/"}
	p.memory = sysinfoMemory
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ProcSource) path(parts ...string) string {
	return filepath.Join(append([]string{p.root, "proc"}, parts...)...)
}

// CPUTimes parses the aggregate "cpu" line of /proc/stat.
// Idle is idle+iowait; Total is user through steal.
func (p *ProcSource) CPUTimes() (CPUTimes, error) {
	data, err := os.ReadFile(p.path("stat"))
	if err != nil {
		return CPUTimes{}, fmt.Errorf("reading stat: %w", err)
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		fields := strings.Fields(string(line))
		if len(fields) > 0 && fields[0] == "cpu" {
			return parseCPULine(fields[1:])
		}
	}
	return CPUTimes{}, fmt.Errorf("no aggregate cpu line in %s", p.path("stat"))
}

func parseCPULine(fields []string) (CPUTimes, error) {
	// user nice system idle iowait irq softirq steal
	if len(fields) < 4 {
		return CPUTimes{}, fmt.Errorf("short cpu line: %d fields", len(fields))
	}
	var v [8]uint64
	for i := 0; i < len(v) && i < len(fields); i++ {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return CPUTimes{}, fmt.Errorf("cpu field %d: %w", i, err)
		}
		v[i] = n
	}
	idle := v[3] + v[4]
	var total uint64
	for _, n := range v {
		total += n
	}
	return CPUTimes{Idle: float64(idle), Total: float64(total)}, nil
}

// Memory returns total and used bytes.
func (p *ProcSource) Memory() (uint64, uint64, error) {
	return p.memory()
}

// meminfo derives the same numbers sysinfo would: used is total minus free.
func (p *ProcSource) meminfo() (uint64, uint64, error) {
	f, err := os.Open(p.path("meminfo"))
	if err != nil {
		return 0, 0, fmt.Errorf("reading meminfo: %w", err)
	}
	defer func() { _ = f.Close() }()

	var total, free uint64
	var haveTotal, haveFree bool
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if len(fields) > 1 && strings.EqualFold(fields[1], "kB") {
			n *= 1024
		}
		switch key {
		case "MemTotal":
			total, haveTotal = n, true
		case "MemFree":
			free, haveFree = n, true
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("scanning meminfo: %w", err)
	}
	if !haveTotal || !haveFree {
		return 0, 0, fmt.Errorf("meminfo missing MemTotal or MemFree")
	}
	if free > total {
		free = total
	}
	return total, total - free, nil
}

// Interfaces parses /proc/net/dev. Every interface is reported, loopback
// included, in file order.
func (p *ProcSource) Interfaces() ([]InterfaceCounters, error) {
	f, err := os.Open(p.path("net", "dev"))
	if err != nil {
		return nil, fmt.Errorf("reading net/dev: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []InterfaceCounters
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if c, ok := parseNetDevLine(sc.Text()); ok {
			out = append(out, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning net/dev: %w", err)
	}
	return out, nil
}

// parseNetDevLine handles "  eth0: rxbytes rxpkts ... txbytes txpkts ...".
// Header lines have no colon-separated numeric tail and are rejected.
func parseNetDevLine(line string) (InterfaceCounters, bool) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return InterfaceCounters{}, false
	}
	name = strings.TrimSpace(name)
	fields := strings.Fields(rest)
	if name == "" || len(fields) < 16 {
		return InterfaceCounters{}, false
	}
	var v [16]uint64
	for i := range v {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return InterfaceCounters{}, false
		}
		v[i] = n
	}
	return InterfaceCounters{
		Name:      name,
		RxBytes:   v[0],
		RxPackets: v[1],
		TxBytes:   v[8],
		TxPackets: v[9],
	}, true
}
