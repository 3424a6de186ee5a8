// Package nmapscan wraps the nmap binary and flattens its XML results into
// compact host reports.
package nmapscan

import (
	"context"
	"fmt"
	"strings"

	nmap "github.com/Ullaakut/nmap/v3"
	log "github.com/sirupsen/logrus"
)

// ScanFunc runs one nmap invocation. Probes take it as a dependency so tests
// can replace the binary.
type ScanFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error)

// Run is the default ScanFunc.
func Run(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.WithField("warnings", *warnings).Warn("Nmap scan produced warnings")
	}
	return result, nil
}

type PortReport struct {
	Port     uint16            `json:"port"`
	Protocol string            `json:"protocol"`
	State    string            `json:"state"`
	Service  string            `json:"service,omitempty"`
	Product  string            `json:"product,omitempty"`
	Scripts  map[string]string `json:"scripts,omitempty"`
}

type HostReport struct {
	Address  string       `json:"address"`
	Hostname string       `json:"hostname,omitempty"`
	Status   string       `json:"status"`
	Ports    []PortReport `json:"ports,omitempty"`
}

// Open returns the ports whose state starts with "open".
func (h HostReport) Open() []PortReport {
	var out []PortReport
	for _, p := range h.Ports {
		if strings.HasPrefix(p.State, "open") {
			out = append(out, p)
		}
	}
	return out
}

// Port returns the report for the given port number, if scanned.
func (h HostReport) Port(id uint16) (PortReport, bool) {
	for _, p := range h.Ports {
		if p.Port == id {
			return p, true
		}
	}
	return PortReport{}, false
}

// Hosts converts an nmap run into host reports, skipping hosts without an
// address.
func Hosts(run *nmap.Run) []HostReport {
	if run == nil {
		return nil
	}
	out := make([]HostReport, 0, len(run.Hosts))
	for _, h := range run.Hosts {
		addr := PickHostAddress(h)
		if addr == "" {
			continue
		}
		hr := HostReport{Address: addr, Status: strings.ToLower(h.Status.State)}
		if len(h.Hostnames) > 0 {
			hr.Hostname = h.Hostnames[0].Name
		}
		for _, p := range h.Ports {
			pr := PortReport{
				Port:     p.ID,
				Protocol: p.Protocol,
				State:    strings.ToLower(p.State.State),
				Service:  p.Service.Name,
				Product:  strings.TrimSpace(p.Service.Product + " " + p.Service.Version),
			}
			for _, s := range p.Scripts {
				if pr.Scripts == nil {
					pr.Scripts = map[string]string{}
				}
				pr.Scripts[s.ID] = strings.TrimSpace(s.Output)
			}
			hr.Ports = append(hr.Ports, pr)
		}
		out = append(out, hr)
	}
	return out
}

// Up returns the addresses of hosts reported as up.
func Up(hosts []HostReport) []string {
	var out []string
	for _, h := range hosts {
		if h.Status == "up" {
			out = append(out, h.Address)
		}
	}
	return out
}

// PickHostAddress prefers IPv4, then IPv6, then whatever nmap reported first.
func PickHostAddress(h nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	for _, a := range h.Addresses {
		if a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}
