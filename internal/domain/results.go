package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StepResults maps step ids to their latest result while remembering the
// order in which each id was first recorded.
type StepResults struct {
	order []StepID
	byID  map[StepID]StepResult
}

func NewStepResults() *StepResults {
	return &StepResults{byID: make(map[StepID]StepResult)}
}

// Set stores res under id. A repeated id keeps its original position and
// takes the new value.
func (r *StepResults) Set(id StepID, res StepResult) {
	if r.byID == nil {
		r.byID = make(map[StepID]StepResult)
	}
	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = res
}

func (r *StepResults) Get(id StepID) (StepResult, bool) {
	if r == nil {
		return StepResult{}, false
	}
	res, ok := r.byID[id]
	return res, ok
}

func (r *StepResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// IDs returns the step ids in first-insertion order.
func (r *StepResults) IDs() []StepID {
	if r == nil {
		return nil
	}
	out := make([]StepID, len(r.order))
	copy(out, r.order)
	return out
}

// Each calls fn for every entry in first-insertion order.
func (r *StepResults) Each(fn func(StepID, StepResult)) {
	if r == nil {
		return
	}
	for _, id := range r.order {
		fn(id, r.byID[id])
	}
}

// Failed counts entries whose status is error.
func (r *StepResults) Failed() int {
	n := 0
	r.Each(func(_ StepID, res StepResult) {
		if res.Failed() {
			n++
		}
	})
	return n
}

func (r *StepResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.IDs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(id))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.byID[id])
		if err != nil {
			return nil, fmt.Errorf("marshal result %q: %w", id, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *StepResults) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = StepResults{byID: make(map[StepID]StepResult)}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("results: expected object, got %v", tok)
	}
	out := NewStepResults()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("results: expected string key, got %v", tok)
		}
		var res StepResult
		if err := dec.Decode(&res); err != nil {
			return fmt.Errorf("results[%q]: %w", key, err)
		}
		out.Set(StepID(key), res)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = *out
	return nil
}
