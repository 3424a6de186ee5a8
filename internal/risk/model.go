package risk

import (
	"slices"

	"bytemomo/narwhal/internal/domain"
)

const (
	maxScore     = 100
	defaultScore = 1
)

// Threshold is the minimum score a level starts at.
type Threshold struct {
	Min   int
	Level domain.RiskLevel
}

// Model is a weighted tactic scorer. The zero value is not usable; build one
// with Default.
type Model struct {
	weights   map[string]int
	critical  []string
	bonus     int
	threshold []Threshold
}

func Default() *Model {
	return &Model{
		weights: map[string]int{
			"Impact":              5,
			"Command and Control": 5,
			"Lateral Movement":    4,
			"Execution":           4,
			"Credential Access":   4,
			"Defense Evasion":     3,
			"Discovery":           2,
		},
		critical: []string{"Impact", "Command and Control", "Lateral Movement"},
		bonus:    5,
		threshold: []Threshold{
			{0, domain.LevelNone},
			{5, domain.LevelLow},
			{15, domain.LevelMedium},
			{30, domain.LevelHigh},
			{50, domain.LevelCritical},
		},
	}
}

// Weight returns the score a single occurrence of tactic adds.
func (m *Model) Weight(tactic string) int {
	if w, ok := m.weights[tactic]; ok {
		return w
	}
	return defaultScore
}

// Score folds the observation's tactic occurrences into a score and level.
// The results argument is accepted for callers that will weigh step outcomes
// later; it does not affect the score today.
func (m *Model) Score(obs domain.Observation, _ *domain.StepResults) (domain.RiskScore, error) {
	breakdown := make(map[string]int)
	score := 0
	for _, tac := range obs.Tactics {
		score += m.Weight(tac)
		breakdown[tac]++
	}

	for _, tac := range m.critical {
		if breakdown[tac] > 0 {
			score += m.bonus
			break
		}
	}

	score = min(max(score, 0), maxScore)

	return domain.RiskScore{
		Score:     score,
		Level:     m.Level(score),
		Breakdown: breakdown,
	}, nil
}

// Level maps a score to the highest threshold it satisfies.
func (m *Model) Level(score int) domain.RiskLevel {
	level := domain.LevelNone
	for _, t := range m.threshold {
		if score >= t.Min {
			level = t.Level
		}
	}
	return level
}

func (m *Model) Thresholds() []Threshold { return slices.Clone(m.threshold) }
