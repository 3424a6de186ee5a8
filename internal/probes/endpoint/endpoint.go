// Package endpoint implements endpoint.os_check.
package endpoint

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/registry"
)

type HostInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	CPUs     int    `json:"cpus"`
}

func LocalHost() HostInfo {
	name, err := os.Hostname()
	if err != nil {
		name = domain.Unknown
	}
	return HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH, Hostname: name, CPUs: runtime.NumCPU()}
}

type Inventory struct {
	Workstations int           `json:"workstations"`
	Servers      int           `json:"servers"`
	Hosts        []domain.Host `json:"hosts"`
}

type Probes struct {
	// Host reports the machine running the assessment; defaults to LocalHost.
	Host func() HostInfo
}

func (p *Probes) Register(reg *registry.Registry) error {
	return reg.RegisterFunc("endpoint.os_check", "Operating system identification and endpoint inventory", p.OSCheck)
}

func (p *Probes) OSCheck(_ context.Context, ec *domain.ExecutionContext) (any, error) {
	host := p.Host
	if host == nil {
		host = LocalHost
	}

	eps := ec.Endpoints()
	inv := Inventory{Hosts: []domain.Host{}}
	for _, h := range eps.Workstations {
		if keep(ec, h) {
			inv.Workstations++
			inv.Hosts = append(inv.Hosts, h)
		}
	}
	for _, h := range eps.Servers {
		if keep(ec, h) {
			inv.Servers++
			inv.Hosts = append(inv.Hosts, h)
		}
	}

	info := host()
	return domain.StepResult{
		Status: domain.StatusSuccess,
		Raw: map[string]any{
			"local":     info,
			"inventory": inv,
		},
		Summary: fmt.Sprintf("Endpoint OS identification (%s/%s), %d workstation(s), %d server(s)",
			info.OS, info.Arch, inv.Workstations, inv.Servers),
	}, nil
}

func keep(ec *domain.ExecutionContext, h domain.Host) bool {
	if h.IP != "" && ec.IsExcluded(h.IP) {
		return false
	}
	return h.Hostname == "" || !ec.IsExcluded(h.Hostname)
}
