package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// Encoder is a fitted one-hot transform over an ordered set of categorical columns.
// Categories per column are kept sorted so expansion order is stable across runs.
type Encoder struct {
	Columns    []string   `json:"columns" yaml:"columns"`
	Categories [][]string `json:"categories" yaml:"categories"`
}

// FitEncoder learns the categories of each column from the provided rows.
// Each row holds the categorical values in the same order as columns.
func FitEncoder(columns []string, rows [][]string) (*Encoder, error) {
	if len(columns) == 0 {
		return nil, errors.New("at least one categorical column required")
	}

	seen := make([]map[string]struct{}, len(columns))
	for i := range seen {
		seen[i] = make(map[string]struct{})
	}

	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d: expected %d categorical values, got %d", r, len(columns), len(row))
		}
		for i, v := range row {
			seen[i][v] = struct{}{}
		}
	}

	e := &Encoder{
		Columns:    slices.Clone(columns),
		Categories: make([][]string, len(columns)),
	}
	for i, s := range seen {
		cats := make([]string, 0, len(s))
		for v := range s {
			cats = append(cats, v)
		}
		slices.Sort(cats)
		e.Categories[i] = cats
	}

	return e, nil
}

// Width is the number of expanded indicator columns.
func (e *Encoder) Width() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c)
	}
	return n
}

// FeatureNames returns the expanded column names as <column>_<category>.
func (e *Encoder) FeatureNames() []string {
	names := make([]string, 0, e.Width())
	for i, col := range e.Columns {
		for _, cat := range e.Categories[i] {
			names = append(names, col+"_"+cat)
		}
	}
	return names
}

// Transform expands one row of categorical values into dst, which must have
// Width() elements. Values not seen at fit time leave their block all zero.
func (e *Encoder) Transform(values []string, dst []float64) error {
	if len(values) != len(e.Columns) {
		return fmt.Errorf("expected %d categorical values, got %d", len(e.Columns), len(values))
	}
	if len(dst) != e.Width() {
		return fmt.Errorf("destination width %d does not match encoder width %d", len(dst), e.Width())
	}

	offset := 0
	for i, v := range values {
		cats := e.Categories[i]
		for j := range cats {
			dst[offset+j] = 0
		}
		if j, ok := slices.BinarySearch(cats, v); ok {
			dst[offset+j] = 1
		}
		offset += len(cats)
	}

	return nil
}

func (e *Encoder) validate() error {
	if len(e.Columns) != len(e.Categories) {
		return fmt.Errorf("encoder has %d columns but %d category lists", len(e.Columns), len(e.Categories))
	}
	for i, cats := range e.Categories {
		if !slices.IsSorted(cats) {
			return fmt.Errorf("categories of %s are not sorted", e.Columns[i])
		}
	}
	return nil
}

// CategoryValue normalizes a raw categorical field to the string the encoder compares against.
func CategoryValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
