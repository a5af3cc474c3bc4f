//go:build darwin

package profile

import (
	"errors"

	"github.com/shirou/gopsutil/v3/net"
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

	if brand, err := unix.Sysctl("machdep.cpu.brand_string"); err != nil {
		errs = append(errs, err)
	} else {
		p.CPUModel = brand
	}

	if memsize, err := unix.SysctlUint64("hw.memsize"); err != nil {
		errs = append(errs, err)
	} else {
		p.TotalMemory = memsize
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		errs = append(errs, err)
	}
	for _, i := range ifaces {
		p.Links = append(p.Links, Link{Name: i.Name})
	}

	if len(errs) == 4 {
		return errors.Join(errs...)
	}
	return nil
}
