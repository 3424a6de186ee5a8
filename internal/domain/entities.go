package domain

import (
	"strings"
	"time"
)

// StepID names a probe as "<domain>.<operation>", e.g. "network.discovery".
type StepID string

// Domain returns the part before the first dot, or "" when there is none.
func (s StepID) Domain() string {
	d, _, ok := strings.Cut(string(s), ".")
	if !ok {
		return ""
	}
	return d
}

// Operation returns the part after the first dot, or "" when there is none.
func (s StepID) Operation() string {
	_, op, _ := strings.Cut(string(s), ".")
	return op
}

func (s StepID) String() string { return string(s) }

type Workflow struct {
	Name         string        `yaml:"name" json:"name"`
	Steps        []StepID      `yaml:"steps" json:"steps"`
	RemoteProbes []RemoteProbe `yaml:"remote_probes,omitempty" json:"remote_probes,omitempty"`
}

// RemoteProbe binds a step to a probe served over gRPC.
type RemoteProbe struct {
	Step    StepID        `yaml:"step" json:"step"`
	Address string        `yaml:"address" json:"address"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// StepResult is the normalized outcome of one probe. Raw holds whatever the
// handler produced and must stay JSON-serializable.
type StepResult struct {
	Status  Status `json:"status"`
	Raw     any    `json:"raw"`
	Summary string `json:"summary"`
}

func (r StepResult) Failed() bool { return r.Status == StatusError }

// StepState tracks a single dispatch through the engine.
type StepState string

const (
	StatePending    StepState = "pending"
	StateDispatched StepState = "dispatched"
	StateSucceeded  StepState = "succeeded"
	StateFailed     StepState = "failed"
)

// StepExecution is one entry of the run's execution log. Repeated step ids
// produce one entry per dispatch.
type StepExecution struct {
	Step       StepID    `json:"step"`
	State      StepState `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Techniques []string  `json:"techniques,omitempty"`
}
