//go:build linux

package profile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func detect(p *SystemProfile) error {
	var errs []error

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		errs = append(errs, err)
	} else {
		p.Kernel = unix.ByteSliceToString(uts.Release[:])
		p.Hostname = unix.ByteSliceToString(uts.Nodename[:])
	}

	if f, err := os.Open("/proc/cpuinfo"); err != nil {
		errs = append(errs, err)
	} else {
		p.CPUModel = parseCPUInfo(f)
		_ = f.Close()
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		errs = append(errs, err)
	} else {
		unit := uint64(info.Unit)
		if unit == 0 {
			unit = 1
		}
		p.TotalMemory = uint64(info.Totalram) * unit
	}

	links, err := readLinks("/sys")
	if err != nil {
		errs = append(errs, err)
	}
	p.Links = links

	if len(errs) == 4 {
		return errors.Join(errs...)
	}
	return nil
}
