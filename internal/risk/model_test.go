package risk

import (
	"testing"

	"bytemomo/narwhal/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		tactics   []string
		score     int
		level     domain.RiskLevel
		breakdown map[string]int
	}{
		{"empty", nil, 0, domain.LevelNone, map[string]int{}},
		{"single discovery", []string{"Discovery"}, 2, domain.LevelNone, map[string]int{"Discovery": 1}},
		{"impact gets bonus", []string{"Impact"}, 10, domain.LevelLow, map[string]int{"Impact": 1}},
		{"unknown tactic weighs one", []string{"Persistence"}, 1, domain.LevelNone, map[string]int{"Persistence": 1}},
		{
			"bonus applied once",
			[]string{"Impact", "Command and Control", "Lateral Movement"},
			5 + 5 + 4 + 5, domain.LevelMedium,
			map[string]int{"Impact": 1, "Command and Control": 1, "Lateral Movement": 1},
		},
		{
			"repeated tactic counted per occurrence",
			[]string{"Discovery", "Discovery", "Discovery"},
			6, domain.LevelLow,
			map[string]int{"Discovery": 3},
		},
		{
			"full catalog sweep",
			[]string{
				"Discovery", "Discovery", "Defense Evasion", "Lateral Movement", "Command and Control",
				"Discovery", "Defense Evasion", "Discovery", "Execution", "Credential Access",
				"Discovery", "Execution", "Impact", "Credential Access", "Impact",
			},
			// 5*2 + 2*3 + 4 + 5 + 2*4 + 2*4 + 2*5 + 5
			56, domain.LevelCritical,
			map[string]int{
				"Discovery": 5, "Defense Evasion": 2, "Lateral Movement": 1, "Command and Control": 1,
				"Execution": 2, "Credential Access": 2, "Impact": 2,
			},
		},
	}

	m := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Score(domain.Observation{Tactics: tt.tactics}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.breakdown, got.Breakdown)
		})
	}
}

func TestScore_ClampsAtHundred(t *testing.T) {
	tactics := make([]string, 30)
	for i := range tactics {
		tactics[i] = "Impact"
	}
	got, err := Default().Score(domain.Observation{Tactics: tactics}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Score)
	assert.Equal(t, domain.LevelCritical, got.Level)
	assert.Equal(t, 30, got.Breakdown["Impact"])
}

func TestScore_Idempotent(t *testing.T) {
	m := Default()
	obs := domain.Observation{Tactics: []string{"Execution", "Impact", "Discovery"}}
	results := domain.NewStepResults()
	results.Set("exploits.metasploit_check", domain.StepResult{Status: domain.StatusError})

	a, err := m.Score(obs, results)
	require.NoError(t, err)
	b, err := m.Score(obs, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLevel_Boundaries(t *testing.T) {
	m := Default()
	tests := map[int]domain.RiskLevel{
		0: domain.LevelNone, 4: domain.LevelNone,
		5: domain.LevelLow, 14: domain.LevelLow,
		15: domain.LevelMedium, 29: domain.LevelMedium,
		30: domain.LevelHigh, 49: domain.LevelHigh,
		50: domain.LevelCritical, 100: domain.LevelCritical,
	}
	for score, want := range tests {
		assert.Equal(t, want, m.Level(score), "score %d", score)
	}
}
