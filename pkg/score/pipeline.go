package score

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/mchmarny/churnscore/pkg/model"
)

const (
	probabilityPrecision = 4
	healthPrecision      = 2
	positiveClass        = 1
	classCount           = 2
	healthScale          = 100
)

// Pipeline scores records against one artifact. It holds no mutable state.
type Pipeline struct {
	artifact    *model.Artifact
	assembler   *Assembler
	importances []float64
}

// NewPipeline validates the artifact layout and builds a pipeline over it.
// A layout mismatch is a construction error wrapping ErrArtifactMismatch.
func NewPipeline(a *model.Artifact) (*Pipeline, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMismatch, err)
	}

	if len(a.Features) == 0 {
		return nil, fmt.Errorf("%w: artifact lists no features", ErrArtifactMismatch)
	}

	asm, err := NewAssembler(a.NumCols, a.CatCols, a.Encoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMismatch, err)
	}
	if !slices.Equal(asm.Features(), a.Features) {
		return nil, fmt.Errorf("%w: assembled columns %v differ from features %v", ErrArtifactMismatch, asm.Features(), a.Features)
	}

	imp, err := model.Importances(a.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactMismatch, err)
	}
	if len(imp) != len(a.Features) {
		return nil, fmt.Errorf("%w: importance vector has %d values for %d features", ErrArtifactMismatch, len(imp), len(a.Features))
	}

	return &Pipeline{
		artifact:    a,
		assembler:   asm,
		importances: imp,
	}, nil
}

// Artifact returns the artifact the pipeline scores against.
func (p *Pipeline) Artifact() *model.Artifact {
	return p.artifact
}

// Assembler returns the pipeline's feature assembler.
func (p *Pipeline) Assembler() *Assembler {
	return p.assembler
}

// ScoreOne scores a single record and returns the minimal result.
func (p *Pipeline) ScoreOne(r Record) (*Result, error) {
	x, err := p.assembler.AssembleOne(r)
	if err != nil {
		return nil, err
	}

	res, err := p.infer([][]float64{x})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// ScoreBatch scores records in order and returns copies of them with the
// probability, health score and top driver columns added.
func (p *Pipeline) ScoreBatch(records []Record) ([]Record, error) {
	start := time.Now()

	results, err := p.ScoreMatrix(records)
	if err != nil {
		return nil, err
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.with(results[i])
	}

	slog.Debug("scored batch", "records", len(out), "elapsed", time.Since(start))
	return out, nil
}

// ScoreMatrix scores records in order and returns the minimal results.
func (p *Pipeline) ScoreMatrix(records []Record) ([]*Result, error) {
	if len(records) == 0 {
		return []*Result{}, nil
	}

	x, err := p.assembler.Assemble(records)
	if err != nil {
		return nil, err
	}
	return p.infer(x)
}

func (p *Pipeline) infer(x [][]float64) ([]*Result, error) {
	proba, err := p.artifact.Model.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(proba) != len(x) {
		return nil, fmt.Errorf("%w: %d probability rows for %d inputs", ErrInference, len(proba), len(x))
	}

	results := make([]*Result, len(x))
	for i, row := range x {
		if len(proba[i]) != classCount {
			return nil, fmt.Errorf("%w: expected %d classes, got %d", ErrInference, classCount, len(proba[i]))
		}

		prob := proba[i][positiveClass]
		if math.IsNaN(prob) || prob < 0 || prob > 1 {
			return nil, fmt.Errorf("%w: probability out of range: %v", ErrInference, prob)
		}

		results[i] = &Result{
			PredictedChurnProb: Round(prob, probabilityPrecision),
			HealthScore:        HealthScore(prob),
			TopDriver:          p.artifact.Features[TopDriverIndex(p.importances, row)],
		}
	}
	return results, nil
}

// HealthScore maps a churn probability to the 0-100 health scale.
func HealthScore(prob float64) float64 {
	return Round((1-prob)*healthScale, healthPrecision)
}

// Contributions returns importance[i] * x[i] for each feature.
func Contributions(importances, x []float64) []float64 {
	c := make([]float64, len(x))
	for i := range x {
		c[i] = importances[i] * x[i]
	}
	return c
}

// TopDriverIndex returns the index of the largest contribution, the first
// one on ties.
func TopDriverIndex(importances, x []float64) int {
	c := Contributions(importances, x)
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i] > c[best] {
			best = i
		}
	}
	return best
}

// Round rounds v to the given number of decimals, half to even.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.RoundToEven(v*pow) / pow
}
