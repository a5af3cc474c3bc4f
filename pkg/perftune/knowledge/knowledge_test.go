package knowledge

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

const sampleKB = `# perftune knowledge base
cpu_bottleneck = cpu_governor=performance
memory_bottleneck=hugepages=1024   # reserve huge pages

	network_bottleneck	=	tcp_rmem=4096:87380:6291456,tcp_wmem=4096:65536:4194304
=orphan value
no separator here
storage_bottleneck=
cpu_bottleneck=cpu_governor=schedutil
`

func TestParse(t *testing.T) {
	kb, err := Parse(strings.NewReader(sampleKB))
	require.NoError(t, err)

	assert.Equal(t, 4, kb.Len())
	assert.Equal(t, "cpu_governor=schedutil", kb.GetConfigValue(KeyCPU), "last write wins")
	assert.Equal(t, "hugepages=1024", kb.GetConfigValue(KeyMemory))
	assert.Equal(t, "tcp_rmem=4096:87380:6291456,tcp_wmem=4096:65536:4194304", kb.GetConfigValue(KeyNetwork))

	v, ok := kb.Lookup(KeyStorage)
	assert.True(t, ok)
	assert.Empty(t, v)

	assert.Empty(t, kb.GetConfigValue("missing"))
	_, ok = kb.Lookup("missing")
	assert.False(t, ok)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		key, val string
		ok       bool
	}{
		{"a=b", "a", "b", true},
		{"  a  =  b  ", "a", "b", true},
		{"a=b=c", "a", "b=c", true},
		{"a=b # trailing", "a", "b", true},
		{"# a=b", "", "", false},
		{"", "", "", false},
		{"=b", "", "", false},
		{"a", "", "", false},
		{"a=", "a", "", true},
		{"a=b\r", "a", "b", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			k, v, ok := parseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, k)
			assert.Equal(t, tt.val, v)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleKB), 0o644))

	kb := Load(path)
	assert.Equal(t, path, kb.Path())
	assert.Equal(t, 4, kb.Len())
	assert.Equal(t, []string{KeyCPU, KeyMemory, KeyNetwork, KeyStorage}, kb.Keys())
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	kb := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.NotNil(t, kb)
	assert.Zero(t, kb.Len())
	assert.Empty(t, kb.GetConfigValue(KeyCPU))
}

func TestRoundTrip(t *testing.T) {
	original := FromMap(map[string]string{
		KeyCPU:     "cpu_governor=performance",
		KeyNetwork: " tcp_rmem=1:2:3 ",
		" ":        "dropped",
	})
	require.Equal(t, 2, original.Len())

	var buf bytes.Buffer
	_, err := original.WriteTo(&buf)
	require.NoError(t, err)

	reparsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, original.Keys(), reparsed.Keys())
	for _, k := range original.Keys() {
		assert.Equal(t, original.GetConfigValue(k), reparsed.GetConfigValue(k))
	}
}

func TestParse_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	input := "cpu_bottleneck=cpu_governor=performance\n" +
		"network_bottleneck=" + long + "\n" +
		"memory_bottleneck=hugepages=1024\n" +
		"storage_bottleneck=scheduler=none"

	kb, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 4, kb.Len())
	assert.Len(t, kb.GetConfigValue("network_bottleneck"), len(long))
	assert.Equal(t, "hugepages=1024", kb.GetConfigValue("memory_bottleneck"))
	assert.Equal(t, "scheduler=none", kb.GetConfigValue("storage_bottleneck"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestParse_ReadError(t *testing.T) {
	kb, err := Parse(failingReader{})
	assert.ErrorIs(t, err, types.ErrTransientIO)
	require.NotNil(t, kb)
	assert.Zero(t, kb.Len())
}

func TestCategoryKey(t *testing.T) {
	want := map[types.BottleneckType]string{
		types.CPU:     "cpu_bottleneck",
		types.Memory:  "memory_bottleneck",
		types.Network: "network_bottleneck",
		types.Storage: "storage_bottleneck",
	}
	for bt, key := range want {
		got, ok := CategoryKey(bt)
		assert.True(t, ok)
		assert.Equal(t, key, got)
	}
	_, ok := CategoryKey(types.BottleneckType(99))
	assert.False(t, ok)
}

func TestNilKnowledgeBase(t *testing.T) {
	var kb *KnowledgeBase
	assert.Empty(t, kb.GetConfigValue(KeyCPU))
	assert.Zero(t, kb.Len())
	assert.Nil(t, kb.Keys())
	assert.Empty(t, kb.Path())
}
