package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bytemomo/narwhal/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CanonicalTable(t *testing.T) {
	c := Default()
	require.Equal(t, 13, c.Len())

	tests := []struct {
		step       domain.StepID
		tactics    []string
		techniques []string
	}{
		{"network.discovery", []string{"Discovery"}, []string{"T1046", "T1016"}},
		{"network.segmentation", []string{"Defense Evasion", "Lateral Movement"}, []string{"T1021", "T1570"}},
		{"network.egress", []string{"Command and Control"}, []string{"T1071", "T1041"}},
		{"pos.pos_validation", []string{"Execution", "Credential Access"}, []string{"T1021", "T1078"}},
		{"exploits.metasploit_check", []string{"Execution"}, []string{"T1203"}},
		{"compliance.backup_check", []string{"Impact"}, []string{"T1490"}},
		{"compliance.gdpr_light", []string{"Impact"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			assert.Equal(t, tt.tactics, c.LookupTactics(tt.step))
			assert.Equal(t, tt.techniques, c.LookupTechniques(tt.step))
		})
	}
}

func TestLookup_UnknownStepIsEmpty(t *testing.T) {
	c := Default()
	assert.Empty(t, c.LookupTechniques("foo.bar"))
	assert.Empty(t, c.LookupTactics("foo.bar"))
	assert.Empty(t, c.LookupTechniques("network.network.discovery"))

	_, ok := c.Lookup("foo.bar")
	assert.False(t, ok)
}

func TestLookup_ReturnsCopies(t *testing.T) {
	c := Default()
	techs := c.LookupTechniques("network.discovery")
	techs[0] = "T0000"
	assert.Equal(t, []string{"T1046", "T1016"}, c.LookupTechniques("network.discovery"))
}

func TestTacticsForTechnique(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"Credential Access", "Execution"}, c.TacticsForTechnique("T1078"))
	assert.ElementsMatch(t, []string{"Defense Evasion", "Lateral Movement", "Execution", "Credential Access"}, c.TacticsForTechnique("T1021"))
	assert.Empty(t, c.TacticsForTechnique("T9999"))
}

func TestParse_RejectsInconsistentKeys(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"doubled prefix", "network.network.discovery:\n  tactics: [Discovery]\n  techniques: [T1046]\n"},
		{"no operation", "discovery:\n  tactics: [Discovery]\n"},
		{"no tactics", "network.discovery:\n  techniques: [T1046]\n"},
		{"bad technique", "network.discovery:\n  tactics: [Discovery]\n  techniques: [1046]\n"},
		{"blank tactic", "network.discovery:\n  tactics: [\" \"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEntry), "expected ErrInvalidEntry, got %v", err)
		})
	}
}

func TestParse_Dedups(t *testing.T) {
	c, err := Parse([]byte("web.tls_enum:\n  tactics: [Defense Evasion, Defense Evasion]\n  techniques: [T1557, T1557.001, T1557]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Defense Evasion"}, c.LookupTactics("web.tls_enum"))
	assert.Equal(t, []string{"T1557", "T1557.001"}, c.LookupTechniques("web.tls_enum"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom.check:\n  tactics: [Persistence]\n  techniques: [T1136]\n"), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.StepID{"custom.check"}, c.Steps())
	assert.Equal(t, []string{"Persistence"}, c.LookupTactics("custom.check"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
