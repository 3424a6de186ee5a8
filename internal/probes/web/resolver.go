package web

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const defaultDNSServer = "1.1.1.1:53"

// Resolver returns the addresses a name resolves to.
type Resolver interface {
	Lookup(ctx context.Context, name string) ([]string, error)
}

// DNSResolver queries A and AAAA records from a single server. When Server
// is empty the first nameserver of /etc/resolv.conf is used.
type DNSResolver struct {
	Server  string
	Timeout time.Duration
}

func (r DNSResolver) server() string {
	if r.Server != "" {
		return r.Server
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return defaultDNSServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

func (r DNSResolver) Lookup(ctx context.Context, name string) ([]string, error) {
	client := &dns.Client{Timeout: r.Timeout}
	if client.Timeout == 0 {
		client.Timeout = 5 * time.Second
	}
	server := r.server()

	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), qtype)
		msg.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			return addrs, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], name, err)
		}
		if resp.Rcode != dns.RcodeSuccess {
			if resp.Rcode == dns.RcodeNameError {
				return addrs, fmt.Errorf("query %s: %s", name, dns.RcodeToString[resp.Rcode])
			}
			continue
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				addrs = append(addrs, rec.A.String())
			case *dns.AAAA:
				addrs = append(addrs, rec.AAAA.String())
			}
		}
	}
	return addrs, nil
}
