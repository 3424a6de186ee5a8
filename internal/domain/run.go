package domain

import "time"

type RunResult struct {
	RunID         string          `json:"run_id"`
	Workflow      string          `json:"workflow,omitempty"`
	Client        Client          `json:"client"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Results       *StepResults    `json:"results"`
	Executions    []StepExecution `json:"executions"`
	MitreObserved []string        `json:"mitre_observed"`
	RiskScore     RiskScore       `json:"risk_score"`
	Targets       TargetSummary   `json:"targets"`
	Report        string          `json:"report"`
}

// TargetSummary lists the assets a run was pointed at, after exclusions.
type TargetSummary struct {
	NetworkRanges []string `json:"network_ranges"`
	Gateways      []string `json:"gateways"`
	Endpoints     []string `json:"endpoints"`
	WebDomains    []string `json:"web_domains"`
	POS           []string `json:"pos"`
}

func (s TargetSummary) Count() int {
	return len(s.NetworkRanges) + len(s.Gateways) + len(s.Endpoints) + len(s.WebDomains) + len(s.POS)
}

func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoryEntry is the compact record kept per run for trend analysis.
type HistoryEntry struct {
	RunID      string    `json:"run_id"`
	Client     string    `json:"client"`
	Workflow   string    `json:"workflow,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Score      int       `json:"score"`
	Level      RiskLevel `json:"level"`
	Techniques []string  `json:"techniques"`
}

func NewHistoryEntry(r *RunResult) HistoryEntry {
	return HistoryEntry{
		RunID:      r.RunID,
		Client:     r.Client.Name,
		Workflow:   r.Workflow,
		Timestamp:  r.FinishedAt,
		Score:      r.RiskScore.Score,
		Level:      r.RiskScore.Level,
		Techniques: append([]string{}, r.MitreObserved...),
	}
}
