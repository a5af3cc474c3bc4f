package store_test

import (
	"math"
	"testing"
	"time"

	"github.com/jamesainslie/perftune/pkg/daemon/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// record stores labelled points a millisecond apart so their order is stable.
func record(t *testing.T, s *store.Store, labels ...string) {
	t.Helper()
	for i, label := range labels {
		if !s.CollectDataPoint(label, float64(i), "percent") {
			t.Fatalf("CollectDataPoint(%q) returned false", label)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStoreCollectAndRecent(t *testing.T) {
	s := openStore(t)
	record(t, s, "cpu_percent", "memory_percent", "network_bytes")

	got, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(got))
	}

	// Newest first
	want := []string{"network_bytes", "memory_percent", "cpu_percent"}
	for i, p := range got {
		if p.Label != want[i] {
			t.Errorf("point %d: expected label %q, got %q", i, want[i], p.Label)
		}
		if p.ID == "" {
			t.Errorf("point %d has no ID", i)
		}
		if p.Units != "percent" {
			t.Errorf("point %d: expected units percent, got %q", i, p.Units)
		}
	}
	if got[0].Value != 2 {
		t.Errorf("Expected newest value 2, got %v", got[0].Value)
	}
}

func TestStoreRecentLimit(t *testing.T) {
	s := openStore(t)
	record(t, s, "a", "b", "c", "d")

	got, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 || got[0].Label != "d" || got[1].Label != "c" {
		t.Errorf("Expected [d c], got %+v", got)
	}
}

func TestStoreSince(t *testing.T) {
	s := openStore(t)
	record(t, s, "old1", "old2")
	mark := time.Now()
	time.Sleep(time.Millisecond)
	record(t, s, "new1", "new2")

	got, err := s.Since(mark)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(got))
	}
	// Oldest first
	if got[0].Label != "new1" || got[1].Label != "new2" {
		t.Errorf("Expected [new1 new2], got [%s %s]", got[0].Label, got[1].Label)
	}
	for _, p := range got {
		if p.Time.Before(mark) {
			t.Errorf("point %s at %v is before %v", p.Label, p.Time, mark)
		}
	}
}

func TestStoreCountAndPrune(t *testing.T) {
	s := openStore(t)
	record(t, s, "a", "b", "c")
	cutoff := time.Now()
	time.Sleep(time.Millisecond)
	record(t, s, "d")

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 points, got %d", n)
	}

	pruned, err := s.Prune(cutoff)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 3 {
		t.Errorf("Expected 3 pruned, got %d", pruned)
	}

	rest, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rest) != 1 || rest[0].Label != "d" {
		t.Errorf("Expected only d to remain, got %+v", rest)
	}

	// Pruning again is a no-op.
	pruned, err = s.Prune(cutoff)
	if err != nil || pruned != 0 {
		t.Errorf("Expected (0, nil), got (%d, %v)", pruned, err)
	}
}

func TestStoreRejectsInvalidPoints(t *testing.T) {
	s := openStore(t)

	if s.CollectDataPoint("", 1, "percent") {
		t.Error("empty label should be rejected")
	}
	if s.CollectDataPoint("cpu_percent", math.NaN(), "percent") {
		t.Error("NaN should be rejected")
	}
	if s.CollectDataPoint("cpu_percent", math.Inf(1), "percent") {
		t.Error("Inf should be rejected")
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no points, got %d", n)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p, err := s.Record("bottleneck.CPU", 0.5, "severity")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = store.Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(got))
	}
	if got[0].ID != p.ID || got[0].Value != 0.5 || !got[0].Time.Equal(p.Time) {
		t.Errorf("Expected %+v, got %+v", p, got[0])
	}
}

func TestStoreEmpty(t *testing.T) {
	s := openStore(t)

	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no points, got %d", len(got))
	}

	// The schema key must not show up as a point.
	n, _ := s.Count()
	if n != 0 {
		t.Errorf("Expected count 0, got %d", n)
	}
}
