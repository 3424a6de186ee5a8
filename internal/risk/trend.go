package risk

import (
	"errors"
	"slices"

	"bytemomo/narwhal/internal/domain"
)

var ErrNoHistory = errors.New("no score history")

type Trend struct {
	Runs    int `json:"runs"`
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
	// Change is Current minus the previous run's score; zero for a single run.
	Change int `json:"change"`
}

// TrendOf summarizes scores listed oldest first.
func TrendOf(scores []int) (Trend, error) {
	if len(scores) == 0 {
		return Trend{}, ErrNoHistory
	}
	t := Trend{
		Runs:    len(scores),
		Min:     slices.Min(scores),
		Max:     slices.Max(scores),
		Current: scores[len(scores)-1],
	}
	if len(scores) > 1 {
		t.Change = t.Current - scores[len(scores)-2]
	}
	return t, nil
}

// TrendOfHistory sorts entries by timestamp before summarizing.
func TrendOfHistory(entries []domain.HistoryEntry) (Trend, error) {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b domain.HistoryEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	scores := make([]int, len(sorted))
	for i, e := range sorted {
		scores[i] = e.Score
	}
	return TrendOf(scores)
}
