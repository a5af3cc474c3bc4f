package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// PlainFormatter writes unstyled, grep-friendly text.
type PlainFormatter struct{}

func (PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	if p := r.Profile; p != nil {
		fmt.Fprintf(w, "host\t%s\n", p.Summary())
		for _, l := range p.Links {
			fmt.Fprintf(w, "link\t%s\t%s\n", l.Name, linkSpeed(l.SpeedMbps))
		}
	}
	if u := r.Usage; u != nil {
		fmt.Fprintf(w, "%s cpu=%s mem=%s (%s/%s) net=%s\n",
			u.Timestamp.Format(time.RFC3339),
			types.FormatPercent(u.CPUPercent),
			types.FormatPercent(u.MemoryPercent),
			types.FormatBytes(u.UsedMemory),
			types.FormatBytes(u.TotalMemory),
			types.FormatBytes(u.NetworkBytes()))
	}
	for _, b := range r.Bottlenecks {
		fmt.Fprintf(w, "bottleneck\t%s\t%.2f\t%s\t%s\n",
			b.Type, b.Severity, types.FormatUsage(b.Type, b.ResourceUsage), b.Recommendation)
	}
	for _, a := range r.Actions {
		verb := "apply"
		if r.DryRun {
			verb = "would-apply"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", verb, a.Category, a.Directive)
	}
	if r.Usage != nil && len(r.Bottlenecks) == 0 {
		w.WriteString("no bottlenecks\n")
	}
	return nil
}

func linkSpeed(mbps int) string {
	if mbps <= 0 {
		return "unknown"
	}
	if mbps >= 1000 && mbps%1000 == 0 {
		return fmt.Sprintf("%dGb/s", mbps/1000)
	}
	return fmt.Sprintf("%dMb/s", mbps)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func init() {
	Register("plain", func() Formatter { return PlainFormatter{} })
}
