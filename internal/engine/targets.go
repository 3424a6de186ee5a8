package engine

import "bytemomo/narwhal/internal/domain"

// TargetsOf resolves the asset lists of a context after exclusions. It only
// feeds reporting and never changes what a step does.
func TargetsOf(ec *domain.ExecutionContext) domain.TargetSummary {
	net := ec.Network()
	ep := ec.Endpoints()

	var endpoints []string
	for _, h := range append(ep.Workstations, ep.Servers...) {
		endpoints = append(endpoints, h.IP)
	}
	var pos []string
	for _, h := range ec.POS().List {
		pos = append(pos, h.IP)
	}

	return domain.TargetSummary{
		NetworkRanges: nonNil(ec.Filter(net.Ranges)),
		Gateways:      nonNil(ec.Filter(net.Gateways)),
		Endpoints:     nonNil(ec.Filter(endpoints)),
		WebDomains:    nonNil(ec.Filter(ec.Web().Domains)),
		POS:           nonNil(ec.Filter(pos)),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
