package domain

type RiskLevel string

const (
	LevelNone     RiskLevel = "NONE"
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// Rank orders levels from NONE (0) to CRITICAL (4); unknown levels rank -1.
func (l RiskLevel) Rank() int {
	switch l {
	case LevelNone:
		return 0
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	}
	return -1
}

type RiskScore struct {
	Score     int            `json:"score"`
	Level     RiskLevel      `json:"level"`
	Breakdown map[string]int `json:"breakdown"`
}

// Observation is what a run hands to the risk model: the deduplicated
// techniques and every tactic occurrence contributed by the steps.
type Observation struct {
	Techniques []string
	Tactics    []string
}
