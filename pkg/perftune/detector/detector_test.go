package detector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(types.Thresholds{CPU: 120, Memory: 90, Network: 1, Storage: 1}, nil)
	assert.ErrorIs(t, err, types.ErrValidation)

	d, err := New(types.DefaultThresholds(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultThresholds(), d.Thresholds())
	assert.Equal(t, types.DefaultThresholds(), NewDefault().Thresholds())
}

func TestDetect_CPUOnly(t *testing.T) {
	d := NewDefault()
	got := d.Detect(90, 50, 400_000_000, 0)

	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, types.CPU, b.Type)
	assert.InDelta(t, 0.5, b.Severity, 1e-9)
	assert.Equal(t, "CPU", b.ResourceName)
	assert.Equal(t, 90.0, b.ResourceUsage)
	assert.Equal(t, "High CPU usage detected", b.Description)
	assert.Equal(t, "Consider optimizing CPU-intensive operations or upgrading CPU", b.Recommendation)
}

func TestDetect_AllFour(t *testing.T) {
	var seen []types.BottleneckType
	d, err := New(types.DefaultThresholds(), func(b types.Bottleneck) {
		seen = append(seen, b.Type)
	})
	require.NoError(t, err)

	got := d.Detect(100, 100, 3_000_000_000, 750_000_000)
	require.Len(t, got, 4)

	want := []types.BottleneckType{types.CPU, types.Memory, types.Network, types.Storage}
	for i, b := range got {
		assert.Equal(t, want[i], b.Type)
	}
	assert.Equal(t, want, seen)

	assert.InDelta(t, 1.0, got[0].Severity, 1e-9)
	assert.InDelta(t, 1.0, got[1].Severity, 1e-9)
	assert.InDelta(t, 1.0, got[2].Severity, 1e-9, "2x overshoot clamps")
	assert.InDelta(t, 0.5, got[3].Severity, 1e-9)
	assert.Equal(t, "Storage", got[3].ResourceName)
}

func TestDetect_Boundaries(t *testing.T) {
	tests := []struct {
		name              string
		cpu, mem          float64
		network, storage  uint64
		wantTypes         []types.BottleneckType
		wantFirstSeverity float64
	}{
		{"all below", 79.9, 89.9, 999_999_999, 499_999_999, nil, 0},
		{"cpu exactly at threshold", 80, 0, 0, 0, []types.BottleneckType{types.CPU}, 0},
		{"memory exactly at threshold", 0, 90, 0, 0, []types.BottleneckType{types.Memory}, 0},
		{"network exactly at threshold", 0, 0, 1_000_000_000, 0, []types.BottleneckType{types.Network}, 0},
		{"network 1.5x", 0, 0, 1_500_000_000, 0, []types.BottleneckType{types.Network}, 0.5},
		{"storage zero never fires", 0, 0, 0, 0, nil, 0},
		{"memory 95", 0, 95, 0, 0, []types.BottleneckType{types.Memory}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDefault().Detect(tt.cpu, tt.mem, tt.network, tt.storage)
			require.Len(t, got, len(tt.wantTypes))
			for i, b := range got {
				assert.Equal(t, tt.wantTypes[i], b.Type)
				assert.GreaterOrEqual(t, b.Severity, 0.0)
				assert.LessOrEqual(t, b.Severity, 1.0)
			}
			if len(got) > 0 {
				assert.InDelta(t, tt.wantFirstSeverity, got[0].Severity, 1e-9)
			}
		})
	}
}

func TestDetect_ZeroStorageThresholdEdge(t *testing.T) {
	d := NewDefault()
	require.NoError(t, d.SetStorageThreshold(1))
	assert.Empty(t, d.Detect(0, 0, 0, 0))
	got := d.Detect(0, 0, 0, 1)
	require.Len(t, got, 1)
	assert.Equal(t, types.Storage, got[0].Type)
}

func TestPercentSeverity(t *testing.T) {
	assert.Equal(t, 1.0, PercentSeverity(100, 100))
	assert.Equal(t, 1.0, PercentSeverity(50, 100))
	assert.InDelta(t, 0.5, PercentSeverity(90, 80), 1e-9)
	assert.Equal(t, 0.0, PercentSeverity(80, 80))
	assert.Equal(t, 1.0, PercentSeverity(150, 80))
}

func TestByteSeverity(t *testing.T) {
	assert.InDelta(t, 0.25, ByteSeverity(1250, 1000), 1e-9)
	assert.Equal(t, 1.0, ByteSeverity(5000, 1000))
	assert.Equal(t, 0.0, ByteSeverity(1000, 1000))
	assert.Equal(t, 1.0, ByteSeverity(1, 0))
}

func TestSetters_RejectWithoutMutation(t *testing.T) {
	d := NewDefault()
	before := d.Thresholds()

	assert.ErrorIs(t, d.SetCPUThreshold(101), types.ErrValidation)
	assert.ErrorIs(t, d.SetCPUThreshold(-1), types.ErrValidation)
	assert.ErrorIs(t, d.SetMemoryThreshold(150), types.ErrValidation)
	assert.ErrorIs(t, d.SetNetworkThreshold(0), types.ErrValidation)
	assert.ErrorIs(t, d.SetStorageThreshold(0), types.ErrValidation)
	assert.ErrorIs(t, d.SetThresholds(types.Thresholds{CPU: 50}), types.ErrValidation)
	assert.Equal(t, before, d.Thresholds())

	require.NoError(t, d.SetCPUThreshold(100))
	require.NoError(t, d.SetMemoryThreshold(0))
	require.NoError(t, d.SetNetworkThreshold(10))
	require.NoError(t, d.SetStorageThreshold(20))
	assert.Equal(t, types.Thresholds{CPU: 100, Memory: 0, Network: 10, Storage: 20}, d.Thresholds())

	got := d.Detect(100, 0, 0, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Severity)
}

func TestDetectUsage(t *testing.T) {
	d := NewDefault()
	u := types.ResourceUsage{
		CPUPercent:    10,
		MemoryPercent: 20,
		Interfaces:    []string{"eth0", "eth1"},
		RxBytes:       []uint64{600_000_000, 100_000_000},
		TxBytes:       []uint64{200_000_000, 100_000_000},
		RxPackets:     []uint64{0, 0},
		TxPackets:     []uint64{0, 0},
	}
	got := d.DetectUsage(u)
	require.Len(t, got, 1)
	assert.Equal(t, types.Network, got[0].Type)
	assert.Equal(t, 1e9, got[0].ResourceUsage)
}

func TestDetectBetween(t *testing.T) {
	d := NewDefault()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := func(at time.Time, rx, tx uint64) types.ResourceUsage {
		return types.ResourceUsage{
			Interfaces: []string{"eth0"},
			RxBytes:    []uint64{rx},
			TxBytes:    []uint64{tx},
			Timestamp:  at,
		}
	}

	t.Run("idle counters", func(t *testing.T) {
		prev := snap(start, 2_000_000_000, 1_000_000_000)
		curr := snap(start.Add(time.Second), 2_000_000_000, 1_000_000_000)
		assert.Empty(t, d.DetectBetween(prev, curr))
	})

	t.Run("throughput over threshold", func(t *testing.T) {
		prev := snap(start, 0, 0)
		curr := snap(start.Add(2*time.Second), 2_000_000_000, 1_000_000_000)
		got := d.DetectBetween(prev, curr)
		require.Len(t, got, 1)
		assert.Equal(t, types.Network, got[0].Type)
		assert.Equal(t, 1.5e9, got[0].ResourceUsage)
		assert.InDelta(t, 0.5, got[0].Severity, 1e-9)
	})

	t.Run("no baseline", func(t *testing.T) {
		curr := snap(start, 5_000_000_000, 0)
		curr.CPUPercent = 95
		got := d.DetectBetween(types.ResourceUsage{}, curr)
		require.Len(t, got, 1)
		assert.Equal(t, types.CPU, got[0].Type)
	})
}

func TestSetCallback(t *testing.T) {
	d := NewDefault()
	var n int
	d.SetCallback(func(types.Bottleneck) { n++ })
	d.Detect(95, 95, 0, 0)
	assert.Equal(t, 2, n)

	d.SetCallback(nil)
	d.Detect(95, 95, 0, 0)
	assert.Equal(t, 2, n)
}

func TestConcurrentDetectAndSet(t *testing.T) {
	d := NewDefault()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				for _, b := range d.Detect(99, 99, 2e9, 1e9) {
					if b.Severity < 0 || b.Severity > 1 {
						t.Errorf("severity out of range: %v", b.Severity)
					}
				}
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = d.SetCPUThreshold(float64(50 + (i+j)%50))
			}
		}(i)
	}
	wg.Wait()
}
