// Package profile reports static facts about the host: operating system,
// kernel, CPU model and count, installed memory and network links. The
// CLI prints it and the daemon logs it at startup.
package profile

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// Link is one network interface.
type Link struct {
	Name string `json:"name" yaml:"name"`
	// SpeedMbps is the negotiated link speed, or 0 when unknown.
	SpeedMbps int `json:"speed_mbps" yaml:"speed_mbps"`
}

// SystemProfile describes the host.
type SystemProfile struct {
	OS          string `json:"os" yaml:"os"`
	Arch        string `json:"arch" yaml:"arch"`
	Hostname    string `json:"hostname" yaml:"hostname"`
	Kernel      string `json:"kernel" yaml:"kernel"`
	CPUModel    string `json:"cpu_model" yaml:"cpu_model"`
	CPUCores    int    `json:"cpu_cores" yaml:"cpu_cores"`
	TotalMemory uint64 `json:"total_memory" yaml:"total_memory"`
	Links       []Link `json:"links" yaml:"links"`
}

// Detect gathers the profile. Individual probes that fail leave their
// fields empty; an error is returned only if nothing could be read.
func Detect() (SystemProfile, error) {
	p := SystemProfile{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}
	if err := detect(&p); err != nil {
		return p, fmt.Errorf("detecting system profile: %w", err)
	}
	return p, nil
}

// LinkNames returns the interface names in order.
func (p SystemProfile) LinkNames() []string {
	names := make([]string, len(p.Links))
	for i, l := range p.Links {
		names[i] = l.Name
	}
	return names
}

// Summary is a one-line description used in logs.
func (p SystemProfile) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s", p.OS, p.Arch)
	if p.Kernel != "" {
		fmt.Fprintf(&b, " kernel %s", p.Kernel)
	}
	if p.CPUModel != "" {
		fmt.Fprintf(&b, ", %s", p.CPUModel)
	}
	fmt.Fprintf(&b, ", %d cores, %s RAM, %d links",
		p.CPUCores, types.FormatBytes(p.TotalMemory), len(p.Links))
	return b.String()
}
