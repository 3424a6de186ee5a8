package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const Unknown = "Unknown"

type Client struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
}

type Host struct {
	IP       string `yaml:"ip" json:"ip"`
	Hostname string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
}

type WiFiNetwork struct {
	SSID     string `yaml:"ssid" json:"ssid"`
	Security string `yaml:"security,omitempty" json:"security,omitempty"`
	Guest    bool   `yaml:"guest,omitempty" json:"guest,omitempty"`
}

type NetworkAssets struct {
	Ranges       []string      `yaml:"ranges" json:"ranges"`
	Gateways     []string      `yaml:"gateways" json:"gateways"`
	Segmentation []string      `yaml:"segmentation" json:"segmentation"`
	WiFi         []WiFiNetwork `yaml:"wifi" json:"wifi"`
}

type EndpointAssets struct {
	Workstations []Host `yaml:"workstations" json:"workstations"`
	Servers      []Host `yaml:"servers" json:"servers"`
}

type WebAssets struct {
	Domains    []string `yaml:"domains" json:"domains"`
	LoginAreas []string `yaml:"login_areas" json:"login_areas"`
}

type PosAssets struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	List    []Host `yaml:"list" json:"list"`
}

type ThirdPartyAssets struct {
	Services []string `yaml:"services" json:"services"`
}

// ComplianceAssets holds self-declared facts; nil pointers mean "not stated".
type ComplianceAssets struct {
	BackupEnabled     *bool  `yaml:"backup_enabled" json:"backup_enabled"`
	LastBackup        string `yaml:"last_backup" json:"last_backup"`
	CardDataEncrypted *bool  `yaml:"card_data_encrypted" json:"card_data_encrypted"`
	SharedAccounts    *bool  `yaml:"shared_accounts" json:"shared_accounts"`
	PrivacyPolicy     string `yaml:"privacy_policy" json:"privacy_policy"`
	DataRetention     string `yaml:"data_retention" json:"data_retention"`
}

type Assets struct {
	Network    NetworkAssets    `yaml:"network" json:"network"`
	Endpoints  EndpointAssets   `yaml:"endpoints" json:"endpoints"`
	Web        WebAssets        `yaml:"web" json:"web"`
	POS        PosAssets        `yaml:"pos_systems" json:"pos_systems"`
	ThirdParty ThirdPartyAssets `yaml:"third_party" json:"third_party"`
	Compliance ComplianceAssets `yaml:"compliance" json:"compliance"`
}

type Constraints struct {
	AllowedHours             string   `yaml:"allowed_hours" json:"allowed_hours"`
	ExcludedAssets           []string `yaml:"excluded_assets" json:"excluded_assets"`
	SocialEngineeringAllowed bool     `yaml:"social_engineering_allowed" json:"social_engineering_allowed"`
	DoSTestingAllowed        bool     `yaml:"dos_testing_allowed" json:"dos_testing_allowed"`
}

// Notes accepts either free text or a mapping in profile files. Mappings are
// flattened to "key: value" lines in key order.
type Notes string

func (n *Notes) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*n = Notes(node.Value)
		return nil
	case yaml.MappingNode:
		var m map[string]any
		if err := node.Decode(&m); err != nil {
			return err
		}
		keys := slices.Sorted(maps.Keys(m))
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %v", k, m[k]))
		}
		*n = Notes(strings.Join(lines, "\n"))
		return nil
	default:
		return fmt.Errorf("notes: unsupported yaml node at line %d", node.Line)
	}
}

// ContextSpec is the mutable description a profile or caller builds before
// freezing it into an ExecutionContext.
type ContextSpec struct {
	Assessment  map[string]any `yaml:"assessment"`
	Client      Client         `yaml:"client"`
	Assets      Assets         `yaml:"assets"`
	Constraints Constraints    `yaml:"security_constraints"`
	Notes       Notes          `yaml:"notes"`
}

// ExecutionContext is the read-only view of the client shared by every
// handler of a run. Accessors return copies.
type ExecutionContext struct {
	spec ContextSpec
}

func NewExecutionContext(spec ContextSpec) *ExecutionContext {
	s := cloneSpec(spec)
	if strings.TrimSpace(s.Client.Name) == "" {
		s.Client.Name = Unknown
	}
	if strings.TrimSpace(s.Client.Category) == "" {
		s.Client.Category = Unknown
	}
	return &ExecutionContext{spec: s}
}

func (c *ExecutionContext) Client() Client { return c.spec.Client }

func (c *ExecutionContext) Network() NetworkAssets {
	n := c.spec.Assets.Network
	return NetworkAssets{
		Ranges:       slices.Clone(n.Ranges),
		Gateways:     slices.Clone(n.Gateways),
		Segmentation: slices.Clone(n.Segmentation),
		WiFi:         slices.Clone(n.WiFi),
	}
}

func (c *ExecutionContext) Endpoints() EndpointAssets {
	e := c.spec.Assets.Endpoints
	return EndpointAssets{
		Workstations: slices.Clone(e.Workstations),
		Servers:      slices.Clone(e.Servers),
	}
}

func (c *ExecutionContext) Web() WebAssets {
	w := c.spec.Assets.Web
	return WebAssets{Domains: slices.Clone(w.Domains), LoginAreas: slices.Clone(w.LoginAreas)}
}

func (c *ExecutionContext) POS() PosAssets {
	p := c.spec.Assets.POS
	return PosAssets{Enabled: p.Enabled, List: slices.Clone(p.List)}
}

func (c *ExecutionContext) ThirdParty() ThirdPartyAssets {
	return ThirdPartyAssets{Services: slices.Clone(c.spec.Assets.ThirdParty.Services)}
}

func (c *ExecutionContext) Compliance() ComplianceAssets {
	return cloneCompliance(c.spec.Assets.Compliance)
}

func (c *ExecutionContext) Constraints() Constraints {
	k := c.spec.Constraints
	k.ExcludedAssets = slices.Clone(k.ExcludedAssets)
	return k
}

// Assessment returns a shallow copy of the assessment metadata.
func (c *ExecutionContext) Assessment() map[string]any {
	return maps.Clone(c.spec.Assessment)
}

func (c *ExecutionContext) Notes() string { return string(c.spec.Notes) }

// Spec returns a deep copy of the description the context was built from.
func (c *ExecutionContext) Spec() ContextSpec { return cloneSpec(c.spec) }

// IsExcluded reports whether the asset (an IP, CIDR or domain) is listed in
// the excluded assets constraint. Comparison is exact and case-insensitive.
func (c *ExecutionContext) IsExcluded(asset string) bool {
	for _, x := range c.spec.Constraints.ExcludedAssets {
		if strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(asset)) {
			return true
		}
	}
	return false
}

// Filter drops excluded and blank entries, keeping order and removing
// duplicates.
func (c *ExecutionContext) Filter(assets []string) []string {
	seen := make(map[string]struct{}, len(assets))
	var out []string
	for _, a := range assets {
		a = strings.TrimSpace(a)
		if a == "" || c.IsExcluded(a) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (c *ExecutionContext) String() string {
	return fmt.Sprintf("%s (%s)", c.spec.Client.Name, c.spec.Client.Category)
}

func cloneSpec(s ContextSpec) ContextSpec {
	out := s
	out.Assessment = maps.Clone(s.Assessment)
	out.Assets.Network.Ranges = slices.Clone(s.Assets.Network.Ranges)
	out.Assets.Network.Gateways = slices.Clone(s.Assets.Network.Gateways)
	out.Assets.Network.Segmentation = slices.Clone(s.Assets.Network.Segmentation)
	out.Assets.Network.WiFi = slices.Clone(s.Assets.Network.WiFi)
	out.Assets.Endpoints.Workstations = slices.Clone(s.Assets.Endpoints.Workstations)
	out.Assets.Endpoints.Servers = slices.Clone(s.Assets.Endpoints.Servers)
	out.Assets.Web.Domains = slices.Clone(s.Assets.Web.Domains)
	out.Assets.Web.LoginAreas = slices.Clone(s.Assets.Web.LoginAreas)
	out.Assets.POS.List = slices.Clone(s.Assets.POS.List)
	out.Assets.ThirdParty.Services = slices.Clone(s.Assets.ThirdParty.Services)
	out.Assets.Compliance = cloneCompliance(s.Assets.Compliance)
	out.Constraints.ExcludedAssets = slices.Clone(s.Constraints.ExcludedAssets)
	return out
}

func cloneCompliance(c ComplianceAssets) ComplianceAssets {
	out := c
	out.BackupEnabled = cloneBool(c.BackupEnabled)
	out.CardDataEncrypted = cloneBool(c.CardDataEncrypted)
	out.SharedAccounts = cloneBool(c.SharedAccounts)
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Slug returns a filesystem-safe form of the client name.
func (c Client) Slug() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(c.Name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "unknown"
	}
	return s
}
