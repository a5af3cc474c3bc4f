package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/perftune/pkg/perftune/optimizer"
	"github.com/jamesainslie/perftune/pkg/perftune/profile"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

func sampleReport(t *testing.T) *Report {
	t.Helper()
	b, err := types.NewBottleneck(types.CPU, "High CPU usage detected", 0.5, "CPU", 90,
		"Consider optimizing CPU-intensive operations or upgrading CPU")
	require.NoError(t, err)
	th := types.DefaultThresholds()
	return &Report{
		Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Usage: &types.ResourceUsage{
			CPUPercent:    90,
			TotalMemory:   8_000_000_000,
			UsedMemory:    2_000_000_000,
			MemoryPercent: 25,
			Interfaces:    []string{"eth0"},
			RxBytes:       []uint64{1_000_000},
			TxBytes:       []uint64{2_000_000},
			RxPackets:     []uint64{10},
			TxPackets:     []uint64{20},
			Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Thresholds:  &th,
		Bottlenecks: []types.Bottleneck{b},
		Actions: []optimizer.Action{
			{Bottleneck: b, Category: "cpu_bottleneck", Directive: "cpu_governor=performance"},
		},
	}
}

func render(t *testing.T, name string, r *Report) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "jsonl", "plain", "pretty", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)

	reg := NewRegistry()
	reg.Register("plain", func() Formatter { return PlainFormatter{} })
	assert.Equal(t, []string{"plain"}, reg.Available())
}

func TestJSONFormatter(t *testing.T) {
	out := render(t, "json", sampleReport(t))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	bns := decoded["bottlenecks"].([]any)
	require.Len(t, bns, 1)
	assert.Equal(t, "CPU", bns[0].(map[string]any)["type"])
	assert.Contains(t, out, `"directive": "cpu_governor=performance"`)
	assert.NotContains(t, out, `"profile"`)
}

func TestJSONLFormatter(t *testing.T) {
	out := render(t, "jsonl", sampleReport(t))
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasPrefix(out, "{"))
}

func TestYAMLFormatter(t *testing.T) {
	out := render(t, "yaml", sampleReport(t))

	var decoded struct {
		Bottlenecks []struct {
			Type     string  `yaml:"type"`
			Severity float64 `yaml:"severity"`
		} `yaml:"bottlenecks"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Bottlenecks, 1)
	assert.Equal(t, "CPU", decoded.Bottlenecks[0].Type)
	assert.Equal(t, 0.5, decoded.Bottlenecks[0].Severity)
}

func TestPlainFormatter(t *testing.T) {
	r := sampleReport(t)
	out := render(t, "plain", r)
	assert.Contains(t, out, "cpu=90.0%")
	assert.Contains(t, out, "bottleneck\tCPU\t0.50\t90.0%")
	assert.Contains(t, out, "apply\tcpu_bottleneck\tcpu_governor=performance")

	r.DryRun = true
	assert.Contains(t, render(t, "plain", r), "would-apply\t")

	r.Bottlenecks, r.Actions = nil, nil
	assert.Contains(t, render(t, "plain", r), "no bottlenecks")
}

func TestPrettyFormatter(t *testing.T) {
	out := render(t, "pretty", sampleReport(t))
	assert.Contains(t, out, "Resource usage")
	assert.Contains(t, out, "1 bottleneck(s)")
	assert.Contains(t, out, "High CPU usage detected")
	assert.Contains(t, out, "cpu_governor=performance")

	quiet := &Report{Usage: &types.ResourceUsage{}}
	assert.Contains(t, render(t, "pretty", quiet), "No bottlenecks detected")
}

func TestProfileSection(t *testing.T) {
	r := &Report{Profile: &profile.SystemProfile{
		OS: "linux", Arch: "amd64", Hostname: "db1", CPUCores: 4,
		TotalMemory: 4_000_000_000,
		Links:       []profile.Link{{Name: "eth0", SpeedMbps: 10000}, {Name: "lo"}},
	}}
	plain := render(t, "plain", r)
	assert.Contains(t, plain, "link\teth0\t10Gb/s")
	assert.Contains(t, plain, "link\tlo\tunknown")
	assert.NotContains(t, plain, "no bottlenecks")

	pretty := render(t, "pretty", r)
	assert.Contains(t, pretty, "db1")
	assert.Contains(t, pretty, "4.0 GB")
}

func TestLinkSpeed(t *testing.T) {
	assert.Equal(t, "unknown", linkSpeed(0))
	assert.Equal(t, "100Mb/s", linkSpeed(100))
	assert.Equal(t, "25Gb/s", linkSpeed(25000))
	assert.Equal(t, "2500Mb/s", linkSpeed(2500))
}
