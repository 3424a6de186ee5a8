// Package web implements the web.* probes.
package web

import (
	"context"
	"fmt"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/probes/nmapscan"
	"bytemomo/narwhal/internal/registry"
)

type Probes struct {
	Log      *logrus.Entry
	Scan     nmapscan.ScanFunc
	Resolver Resolver
}

func (p *Probes) Register(reg *registry.Registry) error {
	if err := reg.RegisterFunc("web.web_enum", "DNS resolution and HTTP title/header enumeration", p.WebEnum); err != nil {
		return err
	}
	return reg.RegisterFunc("web.tls_enum", "TLS protocol and cipher enumeration on 443", p.TLSEnum)
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

func noDomain(summary string) domain.StepResult {
	return domain.StepResult{Status: domain.StatusError, Raw: "", Summary: summary}
}

type Resolution struct {
	Domain    string   `json:"domain"`
	Addresses []string `json:"addresses"`
	Error     string   `json:"error,omitempty"`
}

func (p *Probes) WebEnum(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	domains := ec.Filter(ec.Web().Domains)
	if len(domains) == 0 {
		return noDomain("no web domain configured"), nil
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = DNSResolver{}
	}
	resolved := make([]Resolution, 0, len(domains))
	for _, d := range domains {
		res := Resolution{Domain: d, Addresses: []string{}}
		addrs, err := resolver.Lookup(ctx, d)
		if err != nil {
			p.log().WithError(err).WithField("domain", d).Warn("DNS lookup failed")
			res.Error = err.Error()
		}
		if len(addrs) > 0 {
			res.Addresses = addrs
		}
		resolved = append(resolved, res)
	}

	p.log().WithField("domains", domains).Info("Starting web enumeration")
	run, err := p.scan()(ctx,
		nmap.WithTargets(domains...),
		nmap.WithPorts("80,443"),
		nmap.WithScripts("http-title", "http-headers"),
	)
	if err != nil {
		return nil, err
	}

	return domain.StepResult{
		Status: domain.StatusSuccess,
		Raw: map[string]any{
			"dns":         resolved,
			"hosts":       nmapscan.Hosts(run),
			"login_areas": ec.Filter(ec.Web().LoginAreas),
		},
		Summary: fmt.Sprintf("Web enumeration on %d domain(s)", len(domains)),
	}, nil
}

func (p *Probes) TLSEnum(ctx context.Context, ec *domain.ExecutionContext) (any, error) {
	domains := ec.Filter(ec.Web().Domains)
	if len(domains) == 0 {
		return noDomain("no web domain configured for TLS enumeration"), nil
	}

	run, err := p.scan()(ctx,
		nmap.WithTargets(domains...),
		nmap.WithPorts("443"),
		nmap.WithScripts("ssl-enum-ciphers"),
	)
	if err != nil {
		return nil, err
	}

	ciphers := map[string]string{}
	for _, h := range nmapscan.Hosts(run) {
		name := h.Hostname
		if name == "" {
			name = h.Address
		}
		if port, ok := h.Port(443); ok {
			ciphers[name] = port.Scripts["ssl-enum-ciphers"]
		}
	}
	return domain.StepResult{
		Status:  domain.StatusSuccess,
		Raw:     ciphers,
		Summary: "TLS protocol and cipher enumeration",
	}, nil
}
