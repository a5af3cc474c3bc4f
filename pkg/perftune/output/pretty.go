package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

func (f PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Profile != nil {
		w.WriteString(f.profile(r))
		w.WriteString("\n")
	}
	if r.Usage != nil {
		w.WriteString(HeaderBox.Render(f.usage(r)))
		w.WriteString("\n")
	}
	if r.Usage != nil || len(r.Bottlenecks) > 0 {
		w.WriteString(f.bottlenecks(r))
	}
	if len(r.Actions) > 0 {
		w.WriteString(f.actions(r))
	}
	return nil
}

func (PrettyFormatter) profile(r *Report) string {
	p := r.Profile
	lines := []string{
		TitleStyle.Render(p.Hostname),
		row("OS", fmt.Sprintf("%s/%s %s", p.OS, p.Arch, p.Kernel)),
		row("CPU", fmt.Sprintf("%s (%d cores)", p.CPUModel, p.CPUCores)),
		row("Memory", humanize.Bytes(p.TotalMemory)),
	}
	for _, l := range p.Links {
		lines = append(lines, row("Link", fmt.Sprintf("%s %s", pad(l.Name, 12), MutedStyle.Render(linkSpeed(l.SpeedMbps)))))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (PrettyFormatter) usage(r *Report) string {
	u := r.Usage
	th := types.DefaultThresholds()
	if r.Thresholds != nil {
		th = *r.Thresholds
	}
	lines := []string{
		TitleStyle.Render("Resource usage") + "  " + MutedStyle.Render(humanize.Time(u.Timestamp)),
		row("CPU", PercentStyle(u.CPUPercent, th.CPU).Render(types.FormatPercent(u.CPUPercent))),
		row("Memory", PercentStyle(u.MemoryPercent, th.Memory).Render(types.FormatPercent(u.MemoryPercent))+
			MutedStyle.Render(fmt.Sprintf("  %s of %s", humanize.Bytes(u.UsedMemory), humanize.Bytes(u.TotalMemory)))),
	}
	for i, name := range u.Interfaces {
		lines = append(lines, row("Net "+name, fmt.Sprintf("rx %s  tx %s",
			humanize.Bytes(u.RxBytes[i]), humanize.Bytes(u.TxBytes[i]))))
	}
	return strings.Join(lines, "\n")
}

func (PrettyFormatter) bottlenecks(r *Report) string {
	if len(r.Bottlenecks) == 0 {
		return SuccessStyle.Render("No bottlenecks detected") + "\n"
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%d bottleneck(s)", len(r.Bottlenecks))) + "\n")
	for _, bn := range r.Bottlenecks {
		sev := SeverityStyle(bn.Severity).Render(fmt.Sprintf("%3.0f%%", bn.Severity*100))
		fmt.Fprintf(&b, "  %s %s %s\n", sev, pad(bn.Type.String(), 8), bn.Description)
		fmt.Fprintf(&b, "       %s %s\n", LabelStyle.Render("usage"), types.FormatUsage(bn.Type, bn.ResourceUsage))
		fmt.Fprintf(&b, "       %s\n", MutedStyle.Render(bn.Recommendation))
	}
	return b.String()
}

func (PrettyFormatter) actions(r *Report) string {
	var b strings.Builder
	title := "Applied directives"
	if r.DryRun {
		title = "Directives (dry run)"
	}
	b.WriteString(TitleStyle.Render(title) + "\n")
	for _, a := range r.Actions {
		fmt.Fprintf(&b, "  %s %s\n", LabelStyle.Render(pad(a.Category, 20)), ValueStyle.Render(a.Directive))
	}
	return b.String()
}

func row(label, value string) string {
	return LabelStyle.Render(pad(label+":", 10)) + " " + value
}

func init() {
	Register("pretty", func() Formatter { return PrettyFormatter{} })
}
