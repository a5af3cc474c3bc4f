package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/daemon/broadcaster"
	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

func testSnapshot() daemon.Snapshot {
	return daemon.Snapshot{
		Usage: types.ResourceUsage{
			CPUPercent:    92.5,
			TotalMemory:   8_000_000_000,
			UsedMemory:    2_000_000_000,
			MemoryPercent: 25,
			Interfaces:    []string{"eth0"},
			RxBytes:       []uint64{1_500_000},
			TxBytes:       []uint64{500_000},
			RxPackets:     []uint64{10},
			TxPackets:     []uint64{10},
		},
		Bottlenecks: []types.Bottleneck{{
			Type:          types.CPU,
			Description:   "High CPU usage",
			Severity:      0.925,
			ResourceName:  "cpu",
			ResourceUsage: 92.5,
		}},
		Actions: []optimizer.Action{{Category: "CPU", Directive: "kernel.sched_latency_ns=20000000"}},
	}
}

func TestModel_WaitsForFirstSnapshot(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())

	view := m.View()
	if !strings.Contains(view, "Waiting for the first sample") {
		t.Errorf("expected waiting message, got:\n%s", view)
	}
	if strings.Contains(view, "Bottlenecks") {
		t.Error("bottleneck panel should not render before the first snapshot")
	}
}

func TestModel_SnapshotRendersUsage(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())

	updated, _ := m.Update(snapshotMsg(testSnapshot()))
	m = updated.(Model)

	if !m.ready {
		t.Fatal("model should be ready after a snapshot")
	}
	if m.samples != 1 {
		t.Errorf("samples = %d, want 1", m.samples)
	}

	view := m.View()
	for _, want := range []string{"92.5%", "25.0%", "2.0 MB", "High CPU usage", "kernel.sched_latency_ns"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_NoBottlenecks(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())
	snap := testSnapshot()
	snap.Bottlenecks = nil
	snap.Actions = nil

	updated, _ := m.Update(snapshotMsg(snap))
	view := updated.(Model).renderBottlenecks(60)
	if !strings.Contains(view, "none") {
		t.Errorf("expected empty marker, got %q", view)
	}
}

func TestModel_EventsAreCapped(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())

	for i := 0; i < maxEvents+3; i++ {
		ev := &broadcaster.Event{
			Bottleneck: types.Bottleneck{Type: types.Memory, Description: "event", Severity: 0.95},
			Time:       time.Now(),
		}
		updated, _ := m.Update(eventMsg{event: ev})
		m = updated.(Model)
	}

	if len(m.recent) != maxEvents {
		t.Errorf("recent events = %d, want %d", len(m.recent), maxEvents)
	}
}

func TestModel_Keys(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	m = updated.(Model)
	if m.showLogs {
		t.Error("l should hide the log pane")
	}
	if strings.Contains(m.View(), "Logs") {
		t.Error("log pane rendered while hidden")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestModel_WindowResize(t *testing.T) {
	m := NewModel(nil, nil, types.DefaultThresholds())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("dimensions = %dx%d, want 120x40", m.width, m.height)
	}
	if m.cpuBar.Width != 60 {
		t.Errorf("cpu bar width = %d, want 60", m.cpuBar.Width)
	}
}

func TestWaitForSnapshot(t *testing.T) {
	if waitForSnapshot(nil) != nil {
		t.Error("nil channel should yield no command")
	}

	ch := make(chan daemon.Snapshot, 1)
	ch <- testSnapshot()
	msg := waitForSnapshot(ch)()
	if _, ok := msg.(snapshotMsg); !ok {
		t.Errorf("expected snapshotMsg, got %T", msg)
	}

	close(ch)
	if msg := waitForSnapshot(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}

func TestWaitForEvent_Closed(t *testing.T) {
	ch := make(chan *broadcaster.Event)
	close(ch)
	if msg := waitForEvent(ch)(); msg != nil {
		t.Errorf("closed channel should yield nil, got %T", msg)
	}
}

func TestFraction(t *testing.T) {
	tests := []struct {
		pct  float64
		want float64
	}{
		{-5, 0},
		{0, 0},
		{50, 0.5},
		{100, 1},
		{130, 1},
	}
	for _, tt := range tests {
		if got := fraction(tt.pct); got != tt.want {
			t.Errorf("fraction(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{20, 10},
		{70, 40},
		{200, 60},
	}
	for _, tt := range tests {
		if got := barWidth(tt.width); got != tt.want {
			t.Errorf("barWidth(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Error("expected error without config")
	}
}
