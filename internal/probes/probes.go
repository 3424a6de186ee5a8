// Package probes wires the built-in probe handlers into a registry.
package probes

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bytemomo/narwhal/internal/probes/compliance"
	"bytemomo/narwhal/internal/probes/endpoint"
	"bytemomo/narwhal/internal/probes/network"
	"bytemomo/narwhal/internal/probes/nmapscan"
	"bytemomo/narwhal/internal/probes/pos"
	"bytemomo/narwhal/internal/probes/toolexec"
	"bytemomo/narwhal/internal/probes/web"
	"bytemomo/narwhal/internal/registry"
)

// Options carries shared dependencies. Zero values select the real
// implementations (nmap binary, local commands, raw ICMP, system DNS).
type Options struct {
	Log           *logrus.Entry
	Scan          nmapscan.ScanFunc
	Exec          toolexec.Runner
	Pinger        pos.Pinger
	Resolver      web.Resolver
	Dial          network.DialFunc
	EgressTargets []string
	DNSServer     string
	MaxBackupAge  time.Duration
}

type registrar interface {
	Register(reg *registry.Registry) error
}

// Register installs every built-in probe.
func Register(reg *registry.Registry, opts Options) error {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Exec == nil {
		opts.Exec = toolexec.Exec{}
	}
	if opts.Resolver == nil {
		opts.Resolver = web.DNSResolver{Server: opts.DNSServer}
	}
	if opts.Pinger == nil {
		opts.Pinger = pos.ICMPPinger{Fallback: opts.Exec}
	}

	all := map[string]registrar{
		"network": &network.Probes{
			Log:           log.WithField("probe", "network"),
			Scan:          opts.Scan,
			Exec:          opts.Exec,
			Dial:          opts.Dial,
			EgressTargets: opts.EgressTargets,
		},
		"web": &web.Probes{
			Log:      log.WithField("probe", "web"),
			Scan:     opts.Scan,
			Resolver: opts.Resolver,
		},
		"pos": &pos.Probes{
			Log:    log.WithField("probe", "pos"),
			Scan:   opts.Scan,
			Pinger: opts.Pinger,
		},
		"endpoint":   &endpoint.Probes{},
		"compliance": &compliance.Probes{MaxBackupAge: opts.MaxBackupAge},
	}
	for _, name := range []string{"network", "web", "pos", "endpoint", "compliance"} {
		if err := all[name].Register(reg); err != nil {
			return fmt.Errorf("register %s probes: %w", name, err)
		}
	}
	return nil
}
