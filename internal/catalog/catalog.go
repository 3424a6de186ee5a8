package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"bytemomo/narwhal/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed mitre.yaml
var builtin []byte

var (
	ErrInvalidEntry = errors.New("invalid catalog entry")

	techniquePattern = regexp.MustCompile(`^T\d{4}(\.\d{3})?$`)
)

type Entry struct {
	Tactics    []string `yaml:"tactics" json:"tactics"`
	Techniques []string `yaml:"techniques" json:"techniques"`
}

// Catalog maps step ids to the tactics and techniques they exercise. It is
// immutable once built and safe for concurrent reads.
type Catalog struct {
	entries map[domain.StepID]Entry
	byTech  map[string][]string
}

// Default returns the built-in catalog. It panics if the embedded table is
// malformed, which the package tests guard against.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded table: %v", err))
	}
	return c
}

func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document. Keys must have the form
// <domain>.<operation>; a key such as "network.network.discovery" is rejected
// instead of being silently rewritten.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		entries: make(map[domain.StepID]Entry, len(raw)),
		byTech:  make(map[string][]string),
	}
	for key, e := range raw {
		id := domain.StepID(key)
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		if len(e.Tactics) == 0 {
			return nil, fmt.Errorf("%w: %q has no tactics", ErrInvalidEntry, key)
		}
		for _, tac := range e.Tactics {
			if strings.TrimSpace(tac) == "" {
				return nil, fmt.Errorf("%w: %q has an empty tactic", ErrInvalidEntry, key)
			}
		}
		for _, tech := range e.Techniques {
			if !techniquePattern.MatchString(tech) {
				return nil, fmt.Errorf("%w: %q has malformed technique %q", ErrInvalidEntry, key, tech)
			}
		}
		e.Tactics = dedup(e.Tactics)
		e.Techniques = dedup(e.Techniques)
		c.entries[id] = e
	}

	for _, id := range c.Steps() {
		e := c.entries[id]
		for _, tech := range e.Techniques {
			for _, tac := range e.Tactics {
				if !slices.Contains(c.byTech[tech], tac) {
					c.byTech[tech] = append(c.byTech[tech], tac)
				}
			}
		}
	}
	return c, nil
}

// LookupTechniques returns the techniques for a step, or an empty slice when
// the step is unknown.
func (c *Catalog) LookupTechniques(id domain.StepID) []string {
	return slices.Clone(c.entries[id].Techniques)
}

// LookupTactics returns the tactics for a step, or an empty slice when the
// step is unknown.
func (c *Catalog) LookupTactics(id domain.StepID) []string {
	return slices.Clone(c.entries[id].Tactics)
}

func (c *Catalog) Lookup(id domain.StepID) (Entry, bool) {
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{Tactics: slices.Clone(e.Tactics), Techniques: slices.Clone(e.Techniques)}, true
}

// TacticsForTechnique lists every tactic a technique appears under.
func (c *Catalog) TacticsForTechnique(tech string) []string {
	return slices.Clone(c.byTech[tech])
}

// Steps returns the catalogued step ids in lexical order.
func (c *Catalog) Steps() []domain.StepID {
	out := make([]domain.StepID, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }

func dedup(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
