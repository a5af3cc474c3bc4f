package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/daemon/broadcaster"
	"github.com/jamesainslie/perftune/pkg/perftune/config"
	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/output"
	"github.com/jamesainslie/perftune/pkg/perftune/source"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

const (
	// maxEvents is how many bottleneck events the events panel keeps.
	maxEvents = 8

	// logRows is the height of the log pane.
	logRows = 8

	logRefresh = 500 * time.Millisecond
)

// Options configures the dashboard.
type Options struct {
	Config *config.Config

	// Source overrides the configured metric source.
	Source source.MetricSource
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	snapshots <-chan daemon.Snapshot
	events    <-chan *broadcaster.Event
	th        types.Thresholds

	spinner spinner.Model
	cpuBar  progress.Model
	memBar  progress.Model

	latest  daemon.Snapshot
	ready   bool
	samples int
	recent  []*broadcaster.Event

	logs     []logging.Entry
	showLogs bool

	width  int
	height int
}

// NewModel creates a dashboard fed by snapshots and bottleneck events.
func NewModel(snapshots <-chan daemon.Snapshot, events <-chan *broadcaster.Event, th types.Thresholds) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		snapshots: snapshots,
		events:    events,
		th:        th,
		spinner:   s,
		cpuBar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		memBar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		showLogs:  true,
		width:     80,
		height:    24,
	}
}

// snapshotMsg carries one monitoring pass.
type snapshotMsg daemon.Snapshot

// eventMsg carries one bottleneck notification.
type eventMsg struct{ event *broadcaster.Event }

// logTickMsg refreshes the log pane.
type logTickMsg struct{}

// Init starts the spinner, the listeners and the log refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForSnapshot(m.snapshots),
		waitForEvent(m.events),
		tickLogs(),
	)
}

// waitForSnapshot blocks on the next snapshot. A closed channel ends the
// listener.
func waitForSnapshot(ch <-chan daemon.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func waitForEvent(ch <-chan *broadcaster.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

func tickLogs() tea.Cmd {
	return tea.Tick(logRefresh, func(time.Time) tea.Msg {
		return logTickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.cpuBar.Width = barWidth(msg.Width)
		m.memBar.Width = barWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "l":
			m.showLogs = !m.showLogs
		}
		return m, nil

	case snapshotMsg:
		m.latest = daemon.Snapshot(msg)
		m.ready = true
		m.samples++
		return m, waitForSnapshot(m.snapshots)

	case eventMsg:
		m.recent = append(m.recent, msg.event)
		if len(m.recent) > maxEvents {
			m.recent = m.recent[len(m.recent)-maxEvents:]
		}
		return m, waitForEvent(m.events)

	case logTickMsg:
		m.logs = logging.Recent(logRows)
		return m, tickLogs()

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// barWidth sizes the gauges to the window, leaving room for labels.
func barWidth(width int) int {
	w := width - 30
	if w < 10 {
		return 10
	}
	if w > 60 {
		return 60
	}
	return w
}

// View renders the dashboard.
func (m Model) View() string {
	contentWidth := m.width - 4
	if contentWidth < 20 {
		contentWidth = 20
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("perftune dashboard"))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(repeatChar('─', contentWidth)))
	b.WriteString("\n")

	if !m.ready {
		b.WriteString(fmt.Sprintf("\n  %s Waiting for the first sample...\n", m.spinner.View()))
	} else {
		b.WriteString(panelStyle.Render(m.renderUsage()))
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(m.renderBottlenecks(contentWidth - 4)))
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(m.renderEvents(contentWidth - 4)))
		b.WriteString("\n")
	}

	if m.showLogs {
		b.WriteString(panelStyle.Render(m.renderLogs(contentWidth - 4)))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q quit • l toggle logs"))
	return b.String()
}

func (m Model) renderUsage() string {
	u := m.latest.Usage
	var b strings.Builder

	cpu := output.PercentStyle(u.CPUPercent, m.th.CPU).Render(types.FormatPercent(u.CPUPercent))
	b.WriteString(labelStyle.Render("CPU") + m.cpuBar.ViewAs(fraction(u.CPUPercent)) + " " + cpu + "\n")

	mem := output.PercentStyle(u.MemoryPercent, m.th.Memory).Render(types.FormatPercent(u.MemoryPercent))
	b.WriteString(labelStyle.Render("Memory") + m.memBar.ViewAs(fraction(u.MemoryPercent)) + " " + mem)
	if u.TotalMemory > 0 {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("  %s / %s",
			types.FormatBytes(u.UsedMemory), types.FormatBytes(u.TotalMemory))))
	}
	b.WriteString("\n")

	net := u.NetworkBytes()
	netText := types.FormatBytes(net)
	if m.th.Network > 0 && net > m.th.Network {
		netText = warningTextStyle.Render(netText)
	}
	b.WriteString(labelStyle.Render("Network") + netText +
		mutedTextStyle.Render(fmt.Sprintf("  across %d interfaces", len(u.Interfaces))) + "\n")
	b.WriteString(labelStyle.Render("Samples") + fmt.Sprintf("%d", m.samples))
	return b.String()
}

// fraction converts a percentage to a clamped progress ratio.
func fraction(pct float64) float64 {
	switch {
	case pct <= 0 || pct != pct:
		return 0
	case pct >= 100:
		return 1
	}
	return pct / 100
}

func (m Model) renderBottlenecks(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Bottlenecks"))
	b.WriteString("\n")
	if len(m.latest.Bottlenecks) == 0 {
		b.WriteString(successTextStyle.Render("none"))
		return b.String()
	}
	for i, bn := range m.latest.Bottlenecks {
		if i > 0 {
			b.WriteString("\n")
		}
		sev := output.SeverityStyle(bn.Severity).Render(fmt.Sprintf("%.2f", bn.Severity))
		line := fmt.Sprintf("%-8s %s  %s", bn.Type, types.FormatUsage(bn.Type, bn.ResourceUsage), bn.Description)
		b.WriteString(sev + " " + truncate(line, width-6))
	}
	for _, a := range m.latest.Actions {
		b.WriteString("\n")
		b.WriteString(mutedTextStyle.Render(truncate("  -> "+a.Category+": "+a.Directive, width)))
	}
	return b.String()
}

func (m Model) renderEvents(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Recent events"))
	if len(m.recent) == 0 {
		b.WriteString("\n")
		b.WriteString(mutedTextStyle.Render("none yet"))
		return b.String()
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		ev := m.recent[i]
		line := fmt.Sprintf("%s %s", ev.Time.Local().Format("15:04:05"), ev.Bottleneck.Description)
		b.WriteString("\n")
		b.WriteString(output.SeverityStyle(ev.Bottleneck.Severity).Render(truncate(line, width)))
	}
	return b.String()
}

func (m Model) renderLogs(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Logs"))
	if len(m.logs) == 0 {
		b.WriteString("\n")
		b.WriteString(mutedTextStyle.Render("no log records"))
		return b.String()
	}
	for _, e := range m.logs {
		line := fmt.Sprintf("%s %s [%s] %s",
			e.Time.Format("15:04:05"), logLevelChar(e.Level), e.Component, e.Message)
		b.WriteString("\n")
		b.WriteString(logLevelStyle(e.Level).Render(truncate(line, width)))
	}
	return b.String()
}

// Run samples with a service and shows the dashboard until the user quits.
func Run(opts Options) error {
	if opts.Config == nil {
		return fmt.Errorf("%w: dashboard needs a config", types.ErrValidation)
	}
	th, err := opts.Config.DetectorThresholds()
	if err != nil {
		return err
	}

	snapshots := make(chan daemon.Snapshot, 1)
	svcOpts := []daemon.Option{
		daemon.WithSnapshotHandler(func(s daemon.Snapshot) {
			// The view only needs the newest pass.
			select {
			case snapshots <- s:
			default:
			}
		}),
	}
	if opts.Source != nil {
		svcOpts = append(svcOpts, daemon.WithSource(opts.Source))
	}

	svc, err := daemon.NewService(opts.Config, svcOpts...)
	if err != nil {
		return err
	}
	sub := svc.Subscribe(0)
	defer svc.Unsubscribe(sub.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	p := tea.NewProgram(NewModel(snapshots, sub.Events, th), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logging.Get("tui").Error("dashboard failed", "error", err)
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
