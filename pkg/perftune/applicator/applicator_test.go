package applicator

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// fakeKernel lays out the kernel files the applicator writes to.
func fakeKernel(t *testing.T, cpus int) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"proc/sys/vm/nr_hugepages":         "0\n",
		"proc/irq/default_smp_affinity":    "ff\n",
		"proc/sys/net/ipv4/tcp_rmem":       "4096\t131072\t6291456\n",
		"proc/sys/net/ipv4/tcp_wmem":       "4096\t16384\t4194304\n",
		"proc/sys/vm/swappiness":           "60\n",
		"proc/sys/net/core/rmem_max":       "212992\n",
		"sys/devices/system/cpu/online":    "0-3\n",
		"sys/devices/system/cpu/cpuidle/x": "",
	}
	for i := 0; i < cpus; i++ {
		files[filepath.Join("sys/devices/system/cpu", "cpu"+strconv.Itoa(i), "cpufreq/scaling_governor")] = "powersave\n"
	}
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return string(data)
}

func TestApply_CPUGovernorAllCores(t *testing.T) {
	root := fakeKernel(t, 4)
	res := New(WithRoot(root)).Apply("cpu_governor=performance")

	require.False(t, res.Failed())
	require.Len(t, res.Changes, 4)
	for i := 0; i < 4; i++ {
		rel := filepath.Join("sys/devices/system/cpu", "cpu"+strconv.Itoa(i), "cpufreq/scaling_governor")
		assert.Equal(t, "performance", read(t, root, rel))
		assert.Equal(t, "powersave", res.Changes[i].Previous)
		assert.True(t, res.Changes[i].Applied)
	}
}

func TestApply_FixedKeys(t *testing.T) {
	root := fakeKernel(t, 1)
	res := New(WithRoot(root)).Apply("hugepages=1024, irq_affinity=0f,tcp_rmem=4096:87380:6291456,tcp_wmem=4096:65536:4194304")

	require.False(t, res.Failed(), "%+v", res)
	assert.Equal(t, "1024", read(t, root, "proc/sys/vm/nr_hugepages"))
	assert.Equal(t, "0f", read(t, root, "proc/irq/default_smp_affinity"))
	assert.Equal(t, "4096 87380 6291456", read(t, root, "proc/sys/net/ipv4/tcp_rmem"))
	assert.Equal(t, "4096 65536 4194304", read(t, root, "proc/sys/net/ipv4/tcp_wmem"))
}

func TestApply_DottedSysctl(t *testing.T) {
	root := fakeKernel(t, 1)
	res := New(WithRoot(root)).Apply("vm.swappiness=10,net.core.rmem_max=16777216")

	require.False(t, res.Failed())
	assert.Equal(t, "10", read(t, root, "proc/sys/vm/swappiness"))
	assert.Equal(t, "16777216", read(t, root, "proc/sys/net/core/rmem_max"))
	assert.Equal(t, "60", res.Changes[0].Previous)
}

func TestApply_InvalidAndUnknownSkipped(t *testing.T) {
	root := fakeKernel(t, 1)
	res := New(WithRoot(root)).Apply("bogus=1,hugepages=lots,novalue,=5,tcp_rmem=1:2,vm.swappiness=5")

	assert.True(t, res.Failed())
	assert.Equal(t, []string{"novalue", "=5"}, res.Malformed)

	byKey := map[string]Change{}
	for _, c := range res.Changes {
		byKey[c.Key] = c
	}
	assert.ErrorIs(t, byKey["bogus"].Err, ErrUnknownKey)
	assert.ErrorIs(t, byKey["hugepages"].Err, types.ErrValidation)
	assert.ErrorIs(t, byKey["tcp_rmem"].Err, types.ErrValidation)
	assert.True(t, byKey["vm.swappiness"].Applied, "valid settings still apply")

	assert.Equal(t, "0\n", read(t, root, "proc/sys/vm/nr_hugepages"))
	assert.Equal(t, "5", read(t, root, "proc/sys/vm/swappiness"))
}

func TestApply_MissingKernelFile(t *testing.T) {
	root := fakeKernel(t, 1)
	res := New(WithRoot(root)).Apply("kernel.sched_autogroup_enabled=0")

	require.Len(t, res.Changes, 1)
	assert.ErrorIs(t, res.Changes[0].Err, types.ErrTransientIO)
	assert.NoFileExists(t, filepath.Join(root, "proc/sys/kernel/sched_autogroup_enabled"))
}

func TestApply_DryRun(t *testing.T) {
	root := fakeKernel(t, 2)
	a := New(WithRoot(root), WithDryRun(true))
	assert.True(t, a.DryRun())

	res := a.Apply("cpu_governor=performance,hugepages=64")
	require.False(t, res.Failed())
	for _, c := range res.Changes {
		assert.False(t, c.Applied)
		assert.NotEmpty(t, c.Previous)
	}
	assert.Equal(t, "powersave\n", read(t, root, "sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"))
	assert.Equal(t, "0\n", read(t, root, "proc/sys/vm/nr_hugepages"))
}

func TestApply_NoCpufreq(t *testing.T) {
	root := fakeKernel(t, 0)
	res := New(WithRoot(root)).Apply("cpu_governor=performance")
	require.Len(t, res.Changes, 1)
	assert.Error(t, res.Changes[0].Err)
}

func TestApplyConfiguration_NeverPanics(t *testing.T) {
	a := New(WithRoot(t.TempDir()))
	assert.NotPanics(t, func() {
		a.ApplyConfiguration("")
		a.ApplyConfiguration(",,,")
		a.ApplyConfiguration("cpu_governor=performance")
		a.ApplyConfiguration("../../etc/passwd=x")
	})
}

func TestGovernorFiles_Ordering(t *testing.T) {
	root := fakeKernel(t, 12)
	files, err := GovernorFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 12)
	assert.Contains(t, files[0], "cpu0")
	assert.Contains(t, files[2], "cpu2")
	assert.Contains(t, files[11], "cpu11")

	files, err = GovernorFiles(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCurrent(t *testing.T) {
	root := fakeKernel(t, 2)
	a := New(WithRoot(root))

	v, err := a.Current(KeyTCPRmem)
	require.NoError(t, err)
	assert.Equal(t, "4096 131072 6291456", v)

	v, err = a.Current(KeyCPUGovernor)
	require.NoError(t, err)
	assert.Equal(t, "powersave", v)

	v, err = a.Current("vm.swappiness")
	require.NoError(t, err)
	assert.Equal(t, "60", v)

	_, err = a.Current("mystery")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestSysctlPath(t *testing.T) {
	a := New(WithRoot("/host"))
	assert.Equal(t, "/host/proc/sys/net/ipv4/tcp_congestion_control", a.SysctlPath("net.ipv4.tcp_congestion_control"))
}
