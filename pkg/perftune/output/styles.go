package output

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette shared with the dashboard.
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

var (
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)

	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	DangerStyle  = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
)

// SeverityStyle picks a color for a severity in [0,1].
func SeverityStyle(severity float64) lipgloss.Style {
	switch {
	case severity >= 0.66:
		return DangerStyle
	case severity >= 0.33:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// PercentStyle colors a utilization percentage against its threshold.
func PercentStyle(pct, threshold float64) lipgloss.Style {
	switch {
	case pct >= threshold:
		return DangerStyle
	case pct >= threshold*0.8:
		return WarningStyle
	default:
		return SuccessStyle
	}
}
