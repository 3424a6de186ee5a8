package risk

import "slices"

// Delta is the difference between two runs' observed techniques.
type Delta struct {
	Improved []string `json:"improved"`
	NewRisks []string `json:"new_risks"`
}

// CompareBaseline lists techniques that disappeared since the baseline
// (improved) and those that appeared (new_risks), each in the order of the
// run they come from.
func CompareBaseline(baseline, current []string) Delta {
	d := Delta{Improved: []string{}, NewRisks: []string{}}
	for _, t := range baseline {
		if !slices.Contains(current, t) && !slices.Contains(d.Improved, t) {
			d.Improved = append(d.Improved, t)
		}
	}
	for _, t := range current {
		if !slices.Contains(baseline, t) && !slices.Contains(d.NewRisks, t) {
			d.NewRisks = append(d.NewRisks, t)
		}
	}
	return d
}

func (d Delta) Unchanged() bool { return len(d.Improved) == 0 && len(d.NewRisks) == 0 }
