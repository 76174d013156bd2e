package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	// ArtifactVersion is bumped whenever the serialized layout changes.
	ArtifactVersion = "1"

	fileMode = 0600
)

// Metrics captures hold-out evaluation results recorded at training time.
type Metrics struct {
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
	AUC       float64 `json:"auc" yaml:"auc"`
	TrainRows int     `json:"train_rows" yaml:"trainRows"`
	TestRows  int     `json:"test_rows" yaml:"testRows"`
}

// Artifact is the immutable bundle produced by training and read at scoring time.
// Features lists NumCols followed by the encoder's expanded columns, in the
// exact order the model consumes them.
type Artifact struct {
	Model     Classifier
	Encoder   *Encoder
	Features  []string
	NumCols   []string
	CatCols   []string
	Metrics   *Metrics
	TrainedAt time.Time
}

type modelEnvelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type artifactFile struct {
	Version   string        `json:"version"`
	TrainedAt time.Time     `json:"trained_at"`
	Model     modelEnvelope `json:"model"`
	Encoder   *Encoder      `json:"encoder"`
	Features  []string      `json:"features"`
	NumCols   []string      `json:"num_cols"`
	CatCols   []string      `json:"cat_cols"`
	Metrics   *Metrics      `json:"metrics,omitempty"`
}

// MarshalJSON encodes the artifact with a model type discriminator.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	if a.Model == nil {
		return nil, errors.New("artifact model is nil")
	}

	var env modelEnvelope
	switch m := a.Model.(type) {
	case *LogisticRegression:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("error encoding model: %w", err)
		}
		env = modelEnvelope{Type: TypeLogisticRegression, Params: b}
	default:
		return nil, fmt.Errorf("unsupported model type: %T", a.Model)
	}

	return json.Marshal(&artifactFile{
		Version:   ArtifactVersion,
		TrainedAt: a.TrainedAt,
		Model:     env,
		Encoder:   a.Encoder,
		Features:  a.Features,
		NumCols:   a.NumCols,
		CatCols:   a.CatCols,
		Metrics:   a.Metrics,
	})
}

// UnmarshalJSON decodes an artifact written by MarshalJSON.
func (a *Artifact) UnmarshalJSON(b []byte) error {
	var f artifactFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("error decoding artifact: %w", err)
	}

	if f.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version: %q", f.Version)
	}

	switch f.Model.Type {
	case TypeLogisticRegression:
		var m LogisticRegression
		if err := json.Unmarshal(f.Model.Params, &m); err != nil {
			return fmt.Errorf("error decoding %s params: %w", f.Model.Type, err)
		}
		a.Model = &m
	default:
		return fmt.Errorf("unsupported model type: %q", f.Model.Type)
	}

	a.Encoder = f.Encoder
	a.Features = f.Features
	a.NumCols = f.NumCols
	a.CatCols = f.CatCols
	a.Metrics = f.Metrics
	a.TrainedAt = f.TrainedAt

	return nil
}

// Validate checks that the column metadata, encoder and model agree on layout.
func (a *Artifact) Validate() error {
	if a == nil {
		return errors.New("artifact required")
	}
	if a.Model == nil {
		return errors.New("artifact model required")
	}
	if a.Encoder == nil {
		return errors.New("artifact encoder required")
	}
	if err := a.Encoder.validate(); err != nil {
		return fmt.Errorf("invalid encoder: %w", err)
	}
	if !slices.Equal(a.Encoder.Columns, a.CatCols) {
		return fmt.Errorf("encoder columns %v do not match categorical columns %v", a.Encoder.Columns, a.CatCols)
	}

	expected := slices.Concat(a.NumCols, a.Encoder.FeatureNames())
	if !slices.Equal(expected, a.Features) {
		return fmt.Errorf("features %v do not match numeric + encoded columns %v", a.Features, expected)
	}
	if w := a.Model.Width(); w != len(a.Features) {
		return fmt.Errorf("model expects %d inputs, artifact lists %d features", w, len(a.Features))
	}

	return nil
}

// Save writes the artifact as JSON to path, creating parent directories.
func Save(path string, a *Artifact) error {
	if path == "" {
		return errors.New("artifact path required")
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}

	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding artifact: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create dir: %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write artifact: %s: %w", path, err)
	}
	return nil
}

// Load reads and validates an artifact from path.
func Load(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %s: %w", path, err)
	}

	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %s: %w", path, err)
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %s: %w", path, err)
	}
	return &a, nil
}
