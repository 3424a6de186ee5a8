package engine

import (
	"encoding/json"
	"fmt"

	"bytemomo/narwhal/internal/domain"
)

const failurePrefix = "Step failed: "

// Failure builds the result recorded for a step that could not be resolved
// or whose handler failed.
func Failure(err error) domain.StepResult {
	return domain.StepResult{
		Status:  domain.StatusError,
		Raw:     "",
		Summary: failurePrefix + err.Error(),
	}
}

// Normalize turns whatever a handler returned into a StepResult. Records
// (StepResult values or string-keyed maps carrying a "status" key) are kept
// as they are; maps without a status are kept as structured raw output;
// anything else is stringified.
func Normalize(v any) domain.StepResult {
	res := normalize(v)
	res.Raw = encodable(res.Raw)
	return res
}

// encodable stringifies raw output that JSON cannot represent, such as NaN
// floats, channels or funcs, so reports never fail on a single step.
func encodable(raw any) any {
	switch raw.(type) {
	case nil:
		return ""
	case string:
		return raw
	}
	if _, err := json.Marshal(raw); err != nil {
		return fmt.Sprint(raw)
	}
	return raw
}

func normalize(v any) domain.StepResult {
	switch r := v.(type) {
	case domain.StepResult:
		return withStatus(r)
	case *domain.StepResult:
		if r == nil {
			return success("")
		}
		return withStatus(*r)
	case map[string]any:
		if rec, ok := fromRecord(r); ok {
			return rec
		}
		return domain.StepResult{Status: domain.StatusSuccess, Raw: r}
	case map[string]string:
		m := make(map[string]any, len(r))
		for k, val := range r {
			m[k] = val
		}
		if rec, ok := fromRecord(m); ok {
			return rec
		}
		return domain.StepResult{Status: domain.StatusSuccess, Raw: r}
	case nil:
		return success("")
	case string:
		return success(r)
	case []byte:
		return success(string(r))
	}
	return success(fmt.Sprint(v))
}

func success(raw string) domain.StepResult {
	return domain.StepResult{Status: domain.StatusSuccess, Raw: raw}
}

func withStatus(r domain.StepResult) domain.StepResult {
	if r.Status == "" {
		r.Status = domain.StatusSuccess
	}
	if r.Raw == nil {
		r.Raw = ""
	}
	return r
}

func fromRecord(m map[string]any) (domain.StepResult, bool) {
	s, ok := m["status"]
	if !ok {
		return domain.StepResult{}, false
	}
	var status string
	switch v := s.(type) {
	case string:
		status = v
	case domain.Status:
		status = string(v)
	}
	if status == "" {
		return domain.StepResult{}, false
	}
	res := domain.StepResult{Status: domain.Status(status), Raw: m["raw"]}
	if res.Raw == nil {
		res.Raw = ""
	}
	switch summary := m["summary"].(type) {
	case nil:
	case string:
		res.Summary = summary
	default:
		res.Summary = fmt.Sprint(summary)
	}
	return res, true
}
