// Package train fits the churn classifier and evaluates it through the
// same scoring pipeline used at inference time.
package train

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/score"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	// MaxIterDefault caps LBFGS major iterations.
	MaxIterDefault = 500
	// CDefault is the inverse L2 regularization strength.
	CDefault = 1.0
)

// Options controls the logistic regression fit.
type Options struct {
	MaxIter int
	C       float64
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{MaxIter: MaxIterDefault, C: CDefault}
}

// Spec names the input columns and the label of a training set.
type Spec struct {
	NumCols []string
	CatCols []string
	Label   string
}

// Fit learns the encoder and an L2-regularized logistic regression from
// records and returns the resulting artifact, without evaluation metrics.
func Fit(records []score.Record, spec Spec, opts Options) (*model.Artifact, error) {
	if len(records) == 0 {
		return nil, errors.New("training set is empty")
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = MaxIterDefault
	}
	if opts.C <= 0 {
		return nil, fmt.Errorf("regularization strength must be positive: %v", opts.C)
	}

	y, err := Labels(records, spec.Label)
	if err != nil {
		return nil, err
	}

	cats := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(spec.CatCols))
		for j, c := range spec.CatCols {
			v, ok := model.CategoryValue(r[c])
			if !ok {
				return nil, fmt.Errorf("record %d: invalid categorical value for %s: %v", i, c, r[c])
			}
			row[j] = v
		}
		cats[i] = row
	}

	enc, err := model.FitEncoder(spec.CatCols, cats)
	if err != nil {
		return nil, fmt.Errorf("error fitting encoder: %w", err)
	}

	asm, err := score.NewAssembler(spec.NumCols, spec.CatCols, enc)
	if err != nil {
		return nil, fmt.Errorf("error creating assembler: %w", err)
	}

	x, err := asm.Assemble(records)
	if err != nil {
		return nil, fmt.Errorf("error assembling training matrix: %w", err)
	}

	lr, err := fitLogistic(x, y, opts)
	if err != nil {
		return nil, err
	}

	return &model.Artifact{
		Model:     lr,
		Encoder:   enc,
		Features:  asm.Features(),
		NumCols:   spec.NumCols,
		CatCols:   spec.CatCols,
		TrainedAt: time.Now().UTC(),
	}, nil
}

// Train fits on trainSet, evaluates on testSet and records the metrics on
// the returned artifact.
func Train(trainSet, testSet []score.Record, spec Spec, opts Options) (*model.Artifact, error) {
	a, err := Fit(trainSet, spec, opts)
	if err != nil {
		return nil, err
	}

	p, err := score.NewPipeline(a)
	if err != nil {
		return nil, fmt.Errorf("error creating pipeline from fitted artifact: %w", err)
	}

	m, err := Evaluate(p, testSet, spec.Label)
	if err != nil {
		return nil, fmt.Errorf("error evaluating model: %w", err)
	}
	m.TrainRows = len(trainSet)
	a.Metrics = m

	slog.Info("model trained",
		"train", m.TrainRows,
		"test", m.TestRows,
		"accuracy", fmt.Sprintf("%.3f", m.Accuracy),
		"auc", fmt.Sprintf("%.3f", m.AUC))
	return a, nil
}

// Labels extracts binary labels from records.
func Labels(records []score.Record, label string) ([]float64, error) {
	if label == "" {
		return nil, errors.New("label column required")
	}
	y := make([]float64, len(records))
	for i, r := range records {
		v, ok := score.NumericValue(r[label])
		if !ok || (v != 0 && v != 1) {
			return nil, fmt.Errorf("record %d: label %s must be 0 or 1, got %v", i, label, r[label])
		}
		y[i] = v
	}
	return y, nil
}

// fitLogistic minimizes 0.5*|w|^2 + C*sum(logloss) over w and an
// unpenalized intercept stored as the last parameter.
func fitLogistic(x [][]float64, y []float64, opts Options) (*model.LogisticRegression, error) {
	width := len(x[0])
	c := opts.C

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			w, b := theta[:width], theta[width]
			var f float64
			for _, v := range w {
				f += 0.5 * v * v
			}
			for i, row := range x {
				z := floats.Dot(w, row) + b
				f += c * (softplus(z) - y[i]*z)
			}
			return f
		},
		Grad: func(grad, theta []float64) {
			w, b := theta[:width], theta[width]
			copy(grad[:width], w)
			grad[width] = 0
			for i, row := range x {
				r := c * (model.Sigmoid(floats.Dot(w, row)+b) - y[i])
				for j, v := range row {
					grad[j] += r * v
				}
				grad[width] += r
			}
		},
	}

	settings := &optimize.Settings{MajorIterations: opts.MaxIter}
	result, err := optimize.Minimize(problem, make([]float64, width+1), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("error fitting logistic regression: %w", err)
	}
	if err != nil {
		slog.Warn("optimizer stopped early", "status", result.Status.String(), "error", err)
	}

	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("logistic regression diverged")
		}
	}

	slog.Debug("logistic regression fitted",
		"status", result.Status.String(),
		"iterations", result.Stats.MajorIterations,
		"loss", result.F)

	return &model.LogisticRegression{
		Coef:      append([]float64(nil), result.X[:width]...),
		Intercept: result.X[width],
	}, nil
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
