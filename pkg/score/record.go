package score

import (
	"encoding/json"
	"maps"
)

const (
	// FieldProbability is the batch output column holding the churn probability.
	FieldProbability = "predicted_churn_prob"
	// FieldHealthScore is the batch output column holding the health score.
	FieldHealthScore = "health_score"
	// FieldTopDriver is the batch output column holding the top driver.
	FieldTopDriver = "top_driver"
)

// Record is one customer as field name to value. Fields not required by the
// artifact are ignored by scoring and carried through batch output.
type Record map[string]any

// Result is the minimal single-record scoring output.
type Result struct {
	PredictedChurnProb float64 `json:"predicted_churn_prob" yaml:"predictedChurnProb"`
	HealthScore        float64 `json:"health_score" yaml:"healthScore"`
	TopDriver          string  `json:"top_driver" yaml:"topDriver"`
}

// with returns a copy of r with the result columns added.
func (r Record) with(res *Result) Record {
	out := make(Record, len(r)+3)
	maps.Copy(out, r)
	out[FieldProbability] = res.PredictedChurnProb
	out[FieldHealthScore] = res.HealthScore
	out[FieldTopDriver] = res.TopDriver
	return out
}

// NumericValue converts a raw record field to float64.
func NumericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
