package main

import (
	"testing"
	"time"

	"github.com/jamesainslie/perftune/pkg/daemon"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

func TestMonitorFormat(t *testing.T) {
	tests := []struct {
		format  string
		jsonOut bool
		want    string
	}{
		{"pretty", false, "plain"},
		{"pretty", true, "jsonl"},
		{"json", false, "jsonl"},
		{"jsonl", false, "jsonl"},
		{"yaml", false, "yaml"},
		{"plain", false, "plain"},
	}
	for _, tt := range tests {
		if got := monitorFormat(tt.format, tt.jsonOut); got != tt.want {
			t.Errorf("monitorFormat(%q, %v) = %q, want %q", tt.format, tt.jsonOut, got, tt.want)
		}
	}
}

func TestSnapshotReport(t *testing.T) {
	now := time.Now()
	snap := daemon.Snapshot{Usage: types.ResourceUsage{CPUPercent: 12, Timestamp: now}}
	th := types.DefaultThresholds()

	r := snapshotReport(snap, th, true)
	if r.Usage == nil || r.Usage.CPUPercent != 12 {
		t.Fatalf("Usage = %+v", r.Usage)
	}
	if !r.Time.Equal(now) {
		t.Errorf("Time = %v, want %v", r.Time, now)
	}
	if r.Bottlenecks == nil {
		t.Error("Bottlenecks should be empty, not nil")
	}
	if !r.DryRun {
		t.Error("DryRun not carried")
	}
	if r.Thresholds == nil || r.Thresholds.CPU != th.CPU {
		t.Errorf("Thresholds = %+v", r.Thresholds)
	}

	// The report owns its copy of the usage.
	snap.Usage.CPUPercent = 99
	if r.Usage.CPUPercent != 12 {
		t.Error("report aliases the snapshot usage")
	}
}
