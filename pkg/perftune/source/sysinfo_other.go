//go:build !linux

package source

import "errors"

var errNoSysinfo = errors.New("sysinfo is only available on linux")

func sysinfoMemory() (uint64, uint64, error) {
	return 0, 0, errNoSysinfo
}
