package yamlconfig

import (
	"fmt"
	"slices"
	"strings"

	"bytemomo/narwhal/internal/domain"
)

// Categories accepted for a client.
var Categories = []string{"sme", "shop", "hotel", "restaurant"}

var categoryAliases = map[string]string{
	"pmi":        "sme",
	"negozio":    "shop",
	"ristorante": "restaurant",
}

// NormalizeCategory lower-cases the category and maps known aliases.
func NormalizeCategory(c string) (string, error) {
	c = strings.ToLower(strings.TrimSpace(c))
	if alias, ok := categoryAliases[c]; ok {
		c = alias
	}
	if !slices.Contains(Categories, c) {
		return "", fmt.Errorf("invalid category %q (want one of %s)", c, strings.Join(Categories, ", "))
	}
	return c, nil
}

// Overrides are command line values that take precedence over a profile.
// Empty fields leave the profile untouched.
type Overrides struct {
	Client       string
	Category     string
	NetworkRange string
	WebDomain    string
	Endpoints    string // comma separated IPs, replaces the workstations
	POS          string // comma separated IPs, replaces the POS list
}

func (o Overrides) Apply(spec domain.ContextSpec) (domain.ContextSpec, error) {
	if o.Client != "" {
		spec.Client.Name = o.Client
	}
	if o.Category != "" {
		c, err := NormalizeCategory(o.Category)
		if err != nil {
			return spec, err
		}
		spec.Client.Category = c
	}
	if o.NetworkRange != "" {
		spec.Assets.Network.Ranges = []string{strings.TrimSpace(o.NetworkRange)}
	}
	if o.WebDomain != "" {
		spec.Assets.Web.Domains = []string{strings.TrimSpace(o.WebDomain)}
	}
	if o.Endpoints != "" {
		spec.Assets.Endpoints.Workstations = hosts(o.Endpoints)
	}
	if o.POS != "" {
		spec.Assets.POS.List = hosts(o.POS)
		spec.Assets.POS.Enabled = true
	}
	return spec, nil
}

func hosts(csv string) []domain.Host {
	var out []domain.Host
	for _, ip := range strings.Split(csv, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out = append(out, domain.Host{IP: ip})
		}
	}
	return out
}
