package domain

import (
	"fmt"
	"regexp"
)

var stepIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// Validate reports whether the id has exactly one domain and one operation.
func (s StepID) Validate() error {
	if s == "" {
		return fmt.Errorf("step id is empty")
	}
	if !stepIDPattern.MatchString(string(s)) {
		return fmt.Errorf("step id %q: want <domain>.<operation>", string(s))
	}
	return nil
}

// Validate checks the remote probe declarations. Step ids themselves are not
// validated here: unresolvable steps are recorded as failures at run time.
func (w Workflow) Validate() error {
	seen := make(map[StepID]struct{}, len(w.RemoteProbes))
	for i, p := range w.RemoteProbes {
		if err := p.Step.Validate(); err != nil {
			return fmt.Errorf("remote_probes[%d]: %w", i, err)
		}
		if p.Address == "" {
			return fmt.Errorf("remote_probes[%d]: address is required", i)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("remote_probes[%d]: negative timeout", i)
		}
		if _, dup := seen[p.Step]; dup {
			return fmt.Errorf("remote_probes[%d]: step %q declared twice", i, p.Step)
		}
		seen[p.Step] = struct{}{}
	}
	return nil
}
