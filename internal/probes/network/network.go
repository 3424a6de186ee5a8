// Package network implements the network.* probes: host discovery, TCP port
// scan, segmentation tracing and egress reachability.
package network

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/probes/nmapscan"
	"bytemomo/narwhal/internal/probes/toolexec"
	"bytemomo/narwhal/internal/registry"
)

const (
	defaultEgressTarget = "8.8.8.8:443"
	defaultDialTimeout  = 5 * time.Second
	topPorts            = 1000
)

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Probes struct {
	Log  *logrus.Entry
	Scan nmapscan.ScanFunc
	Exec toolexec.Runner
	Dial DialFunc

	// EgressTargets are host:port pairs probed by network.egress.
	EgressTargets []string
	DialTimeout   time.Duration
}

func (p *Probes) Register(reg *registry.Registry) error {
	steps := []struct {
		id   domain.StepID
		desc string
		fn   domain.HandlerFunc
	}{
		{"network.discovery", "Ping sweep of the declared network ranges", p.Discovery},
		{"network.portscan", "TCP connect scan of the top 1000 ports on endpoints", p.Portscan},
		{"network.segmentation", "Route tracing towards gateways", p.Segmentation},
		{"network.egress", "Outbound TCP reachability towards the internet", p.Egress},
	}
	for _, s := range steps {
		if err := reg.RegisterFunc(s.id, s.desc, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *Probes) scan() nmapscan.ScanFunc {
	if p.Scan != nil {
		return p.Scan
	}
	return nmapscan.Run
}

func (p *Probes) log() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (p *Probes) Discovery(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	ranges := ec.Filter(ec.Network().Ranges)
	if len(ranges) == 0 {
		return domain.StepResult{Status: domain.StatusError, Raw: "", Summary: "no network range configured"}, nil
	}

	p.log().WithField("ranges", ranges).Info("Starting host discovery")
	run, err := p.scan()(ctx,
		nmap.WithTargets(ranges...),
		nmap.WithPingScan(),
	)
	if err != nil {
		return nil, err
	}

	hosts := nmapscan.Hosts(run)
	up := filterUp(ec, nmapscan.Up(hosts))
	return domain.StepResult{
		Status: domain.StatusSuccess,
		Raw: map[string]any{
			"ranges":   ranges,
			"hosts_up": up,
		},
		Summary: fmt.Sprintf("Host discovery on %d range(s): %d host(s) up", len(ranges), len(up)),
	}, nil
}

// Portscan targets endpoints and falls back to gateways when no endpoint is
// declared.
func (p *Probes) Portscan(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	targets := endpointIPs(ec)
	if len(targets) == 0 {
		targets = ec.Filter(ec.Network().Gateways)
	}
	if len(targets) == 0 {
		return domain.StepResult{Status: domain.StatusError, Raw: "", Summary: "no endpoint or gateway to scan"}, nil
	}

	p.log().WithField("targets", targets).Info("Starting TCP port scan")
	run, err := p.scan()(ctx,
		nmap.WithTargets(targets...),
		nmap.WithConnectScan(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithMostCommonPorts(topPorts),
		nmap.WithDisabledDNSResolution(),
	)
	if err != nil {
		return nil, err
	}

	hosts := nmapscan.Hosts(run)
	open := 0
	for i := range hosts {
		hosts[i].Ports = hosts[i].Open()
		open += len(hosts[i].Ports)
	}
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     hosts,
		Summary: fmt.Sprintf("TCP port scan on %d target(s): %d open port(s)", len(targets), open),
	}, nil
}

func (p *Probes) Segmentation(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	gateways := ec.Filter(ec.Network().Gateways)
	if len(gateways) == 0 {
		return domain.StepResult{Status: domain.StatusError, Raw: "", Summary: "no gateway configured"}, nil
	}
	runner := p.Exec
	if runner == nil {
		runner = toolexec.Exec{}
	}

	traces := make([]toolexec.Output, 0, len(gateways))
	failures := 0
	for _, gw := range gateways {
		name, args := traceCommand(gw)
		out, err := runner.Run(ctx, name, args...)
		if err != nil {
			p.log().WithError(err).WithField("gateway", gw).Warn("Trace failed")
			out.Stderr = err.Error()
			out.ExitCode = -1
		}
		if !out.OK() {
			failures++
		}
		traces = append(traces, out)
	}

	status := domain.StatusSuccess
	if failures == len(gateways) {
		status = domain.StatusError
	}
	return domain.StepResult{
		Status: status,
		Raw: map[string]any{
			"traces":       traces,
			"segmentation": ec.Network().Segmentation,
		},
		Summary: fmt.Sprintf("Segmentation and routing check towards %d gateway(s)", len(gateways)),
	}, nil
}

func traceCommand(target string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "tracert", []string{"-d", target}
	}
	return "traceroute", []string{"-n", target}
}

type EgressCheck struct {
	Target    string `json:"target"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Egress only reports reachability; a blocked target is a finding, not a
// probe failure.
func (p *Probes) Egress(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	targets := p.EgressTargets
	if len(targets) == 0 {
		targets = []string{defaultEgressTarget}
	}
	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	checks := make([]EgressCheck, 0, len(targets))
	reachable := 0
	for _, target := range targets {
		check := EgressCheck{Target: target}
		dctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		conn, err := dial(dctx, "tcp", target)
		cancel()
		if err != nil {
			check.Error = err.Error()
		} else {
			check.Reachable = true
			check.LatencyMS = time.Since(start).Milliseconds()
			reachable++
			_ = conn.Close()
		}
		p.log().WithFields(logrus.Fields{"target": target, "reachable": check.Reachable}).Debug("Egress check")
		checks = append(checks, check)
	}

	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     checks,
		Summary: fmt.Sprintf("Egress traffic test: %d/%d target(s) reachable", reachable, len(targets)),
	}, nil
}

func endpointIPs(ec *domain.ExecutionContext) []string {
	eps := ec.Endpoints()
	var ips []string
	for _, hosts := range [][]domain.Host{eps.Workstations, eps.Servers} {
		for _, h := range hosts {
			if h.Hostname != "" && ec.IsExcluded(h.Hostname) {
				continue
			}
			ips = append(ips, h.IP)
		}
	}
	return ec.Filter(ips)
}

func filterUp(ec *domain.ExecutionContext, addrs []string) []string {
	out := ec.Filter(addrs)
	if out == nil {
		out = []string{}
	}
	return out
}
