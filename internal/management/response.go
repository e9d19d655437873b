package management

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Outcome is the verdict of an operation or a composite step.
type Outcome string

// Outcomes reported by the container.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Process states that require the container to reload or restart.
const (
	ProcessStateReloadRequired  = "reload-required"
	ProcessStateRestartRequired = "restart-required"
)

// Warning is a message the container attached to a response.
type Warning struct {
	Message string `json:"warning"`
	Level   string `json:"level"`
}

// Headers are the response headers of an operation.
type Headers struct {
	RequiresReload  bool      `json:"operation-requires-reload,omitempty"`
	RequiresRestart bool      `json:"operation-requires-restart,omitempty"`
	ProcessState    string    `json:"process-state,omitempty"`
	Warnings        []Warning `json:"warnings,omitempty"`
}

// NeedsRestart reports whether the change only takes effect after a reload or restart.
func (h Headers) NeedsRestart() bool {
	return h.RequiresReload || h.RequiresRestart ||
		h.ProcessState == ProcessStateReloadRequired || h.ProcessState == ProcessStateRestartRequired
}

// Response is the container's answer to a Request.
type Response struct {
	Outcome            Outcome         `json:"outcome"`
	Result             json.RawMessage `json:"result,omitempty"`
	FailureDescription json.RawMessage `json:"failure-description,omitempty"`
	RolledBack         bool            `json:"rolled-back,omitempty"`
	Headers            Headers         `json:"response-headers"`
}

// Succeeded reports a success outcome.
func (r *Response) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Failure renders the failure description as text. Plain strings are
// unquoted and structured descriptions are returned as compact JSON.
func (r *Response) Failure() string {
	raw := bytes.TrimSpace(r.FailureDescription)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}

	return compact.String()
}

// Steps decodes the per-step responses of a composite, keyed by step id.
func (r *Response) Steps() (map[string]*Response, error) {
	if len(r.Result) == 0 {
		return map[string]*Response{}, nil
	}

	var steps map[string]*Response
	if err := json.Unmarshal(r.Result, &steps); err != nil {
		return nil, fmt.Errorf("decode composite steps: %w", err)
	}

	return steps, nil
}

// DecodeResult unmarshals the result into target.
func (r *Response) DecodeResult(target any) error {
	if len(r.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(r.Result, target); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	return nil
}

// warnings collects the warnings of the response and of its steps in step order.
func (r *Response) warnings() []Warning {
	result := append([]Warning(nil), r.Headers.Warnings...)

	if !bytes.HasPrefix(bytes.TrimSpace(r.Result), []byte("{")) {
		return result
	}

	steps, err := r.Steps()
	if err != nil {
		return result
	}

	for _, id := range sortedStepIDs(steps) {
		if step := steps[id]; step != nil && step.Outcome != "" {
			result = append(result, step.warnings()...)
		}
	}

	return result
}

// sortedStepIDs orders "step-N" keys numerically, other keys last in lexical order.
func sortedStepIDs(steps map[string]*Response) []string {
	ids := make([]string, 0, len(steps))
	for id := range steps {
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b string) int {
		na, okA := stepNumber(a)
		nb, okB := stepNumber(b)

		switch {
		case okA && okB:
			return na - nb
		case okA:
			return -1
		case okB:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	return ids
}

func stepNumber(id string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(id, "step-%d", &n); err != nil {
		return 0, false
	}

	return n, true
}
