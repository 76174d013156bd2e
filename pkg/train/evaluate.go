package train

import (
	"errors"
	"log/slog"

	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/score"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

const decisionThreshold = 0.5

// Evaluate scores records through the pipeline and compares the predictions
// against their labels.
func Evaluate(p *score.Pipeline, records []score.Record, label string) (*model.Metrics, error) {
	if len(records) == 0 {
		return nil, errors.New("evaluation set is empty")
	}

	y, err := Labels(records, label)
	if err != nil {
		return nil, err
	}

	results, err := p.ScoreMatrix(records)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, len(results))
	for i, r := range results {
		probs[i] = r.PredictedChurnProb
	}

	return &model.Metrics{
		Accuracy: Accuracy(probs, y),
		AUC:      AUC(probs, y),
		TestRows: len(records),
	}, nil
}

// Accuracy is the share of rows where prob > 0.5 agrees with the label.
func Accuracy(probs, y []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	var hit int
	for i, p := range probs {
		pred := 0.0
		if p > decisionThreshold {
			pred = 1
		}
		if pred == y[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(probs))
}

// AUC is the area under the ROC curve. It is 0 when only one class is present.
func AUC(probs, y []float64) float64 {
	scores := append([]float64(nil), probs...)
	classes := make([]bool, len(y))
	var pos int
	for i, v := range y {
		classes[i] = v == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		slog.Warn("AUC undefined for single-class evaluation set", "rows", len(y))
		return 0
	}

	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
