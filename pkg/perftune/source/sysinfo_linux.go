//go:build linux

package source

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sysinfoMemory reports total and used RAM from sysinfo(2).
func sysinfoMemory() (uint64, uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	free := uint64(info.Freeram) * unit
	if free > total {
		free = total
	}
	return total, total - free, nil
}
