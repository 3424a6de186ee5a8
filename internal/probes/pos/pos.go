// Package pos implements the pos.* probes against declared point-of-sale
// terminals. Nothing here sends payloads beyond echo and port probes.
package pos

import (
	"context"
	"fmt"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/probes/nmapscan"
	"bytemomo/narwhal/internal/registry"
)

const smbPort = 445

type Probes struct {
	Log    *logrus.Entry
	Scan   nmapscan.ScanFunc
	Pinger Pinger
}

func (p *Probes) Register(reg *registry.Registry) error {
	if err := reg.RegisterFunc("pos.pos_enum", "ICMP reachability of declared POS terminals", p.Enum); err != nil {
		return err
	}
	return reg.RegisterFunc("pos.pos_validation", "SMB exposure check on POS terminals", p.Validation)
}

func (p *Probes) log() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func posIPs(ec *domain.ExecutionContext) []string {
	var ips []string
	for _, h := range ec.POS().List {
		if h.Hostname != "" && ec.IsExcluded(h.Hostname) {
			continue
		}
		ips = append(ips, h.IP)
	}
	return ec.Filter(ips)
}

type Reachability struct {
	IP        string `json:"ip"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

func (p *Probes) Enum(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	ips := posIPs(ec)
	if !ec.POS().Enabled || len(ips) == 0 {
		return domain.StepResult{
			Status:  domain.StatusSuccess,
			Raw:     []Reachability{},
			Summary: "No POS terminal declared",
		}, nil
	}

	pinger := p.Pinger
	if pinger == nil {
		pinger = ICMPPinger{}
	}
	findings := make([]Reachability, 0, len(ips))
	up := 0
	for _, ip := range ips {
		r := Reachability{IP: ip}
		ok, err := pinger.Ping(ctx, ip)
		if err != nil {
			p.log().WithError(err).WithField("pos", ip).Warn("POS ping failed")
			r.Error = err.Error()
		}
		r.Reachable = ok
		if ok {
			up++
		}
		findings = append(findings, r)
	}
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     findings,
		Summary: fmt.Sprintf("POS inventory: %d/%d terminal(s) reachable", up, len(ips)),
	}, nil
}

type SMBExposure struct {
	IP      string `json:"ip"`
	State   string `json:"state"`
	Exposed bool   `json:"exposed"`
}

func (p *Probes) Validation(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	ips := posIPs(ec)
	if !ec.POS().Enabled || len(ips) == 0 {
		return domain.StepResult{
			Status:  domain.StatusSuccess,
			Raw:     []SMBExposure{},
			Summary: "No POS terminal declared",
		}, nil
	}

	scan := p.Scan
	if scan == nil {
		scan = nmapscan.Run
	}
	run, err := scan(ctx,
		nmap.WithTargets(ips...),
		nmap.WithPorts(fmt.Sprint(smbPort)),
		nmap.WithSkipHostDiscovery(),
		nmap.WithDisabledDNSResolution(),
	)
	if err != nil {
		return nil, err
	}

	byIP := map[string]nmapscan.HostReport{}
	for _, h := range nmapscan.Hosts(run) {
		byIP[h.Address] = h
	}
	report := make([]SMBExposure, 0, len(ips))
	exposed := 0
	for _, ip := range ips {
		e := SMBExposure{IP: ip, State: "unknown"}
		if h, ok := byIP[ip]; ok {
			if port, ok := h.Port(smbPort); ok {
				e.State = port.State
				e.Exposed = port.State == "open"
			}
		}
		if e.Exposed {
			exposed++
		}
		report = append(report, e)
	}
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     report,
		Summary: fmt.Sprintf("POS security validation: SMB exposed on %d/%d terminal(s)", exposed, len(ips)),
	}, nil
}
