package entity

import "encoding/json"

// ExecutionRequest carries caller-supplied input values keyed by field id or
// raw field name.
type ExecutionRequest struct {
	InputValues map[string]any `json:"input_values"`
}

// ItemResult is the outcome for one calculated field or formula.
type ItemResult struct {
	Value any
	Error string
}

// Failed reports whether the item did not evaluate.
func (r ItemResult) Failed() bool {
	return r.Error != ""
}

// MarshalJSON writes successful values as the bare scalar and failures as
// {"error": "...", "value": null}.
func (r ItemResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
			Value any    `json:"value"`
		}{Error: r.Error})
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *ItemResult) UnmarshalJSON(data []byte) error {
	var failure struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &failure); err == nil && failure.Error != nil {
		*r = ItemResult{Error: *failure.Error}
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = ItemResult{Value: v}
	return nil
}

// ExecutionResult is the outcome of one calculator run. Results are keyed by
// item id and, for successful items, also by raw item name.
type ExecutionResult struct {
	Success    bool                  `json:"success"`
	Results    map[string]ItemResult `json:"results"`
	DurationMs float64               `json:"duration_ms"`
}

// ErrorCount returns the number of failed items. Failed items are only keyed
// by id, so each failure is counted once.
func (r *ExecutionResult) ErrorCount() int {
	n := 0
	for _, item := range r.Results {
		if item.Failed() {
			n++
		}
	}
	return n
}
