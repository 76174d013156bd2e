package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// TypeLogisticRegression is the artifact discriminator for LogisticRegression.
	TypeLogisticRegression = "logistic_regression"
)

// ErrNoImportance is returned when a classifier exposes neither feature
// importances nor linear coefficients.
var ErrNoImportance = errors.New("classifier exposes no importance vector")

// Classifier is a fitted binary classifier.
type Classifier interface {
	// PredictProba returns one [negative, positive] probability pair per row.
	PredictProba(x [][]float64) ([][]float64, error)
	// Width is the number of input features the classifier expects.
	Width() int
}

// FeatureImportancer is implemented by classifiers that carry a
// feature-importance vector aligned with their inputs.
type FeatureImportancer interface {
	FeatureImportances() []float64
}

// Linear is implemented by classifiers with one coefficient per input.
type Linear interface {
	Coefficients() []float64
}

// Importances resolves the importance vector used for driver attribution:
// feature importances when available, otherwise absolute linear coefficients.
func Importances(c Classifier) ([]float64, error) {
	if fi, ok := c.(FeatureImportancer); ok {
		return append([]float64(nil), fi.FeatureImportances()...), nil
	}
	if l, ok := c.(Linear); ok {
		coef := l.Coefficients()
		out := make([]float64, len(coef))
		for i, v := range coef {
			out[i] = math.Abs(v)
		}
		return out, nil
	}
	return nil, ErrNoImportance
}

// LogisticRegression is a binary linear classifier with a sigmoid link.
type LogisticRegression struct {
	Coef      []float64 `json:"coef" yaml:"coef"`
	Intercept float64   `json:"intercept" yaml:"intercept"`
}

func (m *LogisticRegression) Width() int {
	return len(m.Coef)
}

func (m *LogisticRegression) Coefficients() []float64 {
	return m.Coef
}

// Decision returns the linear score w.x + b for one row.
func (m *LogisticRegression) Decision(x []float64) float64 {
	return floats.Dot(m.Coef, x) + m.Intercept
}

func (m *LogisticRegression) PredictProba(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.Coef) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.Coef))
		}
		p := Sigmoid(m.Decision(row))
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// Sigmoid is the logistic function, evaluated without overflow for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
