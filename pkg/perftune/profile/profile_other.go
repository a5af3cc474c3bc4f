//go:build !linux && !darwin

package profile

import (
	"errors"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

func detect(p *SystemProfile) error {
	var errs []error

	if h, err := host.Info(); err != nil {
		errs = append(errs, err)
	} else {
		p.Kernel = h.KernelVersion
		p.Hostname = h.Hostname
	}

	if infos, err := cpu.Info(); err != nil {
		errs = append(errs, err)
	} else if len(infos) > 0 {
		p.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		errs = append(errs, err)
	} else {
		p.TotalMemory = vm.Total
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
