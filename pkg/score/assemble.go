package score

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mchmarny/churnscore/pkg/model"
)

// Assembler turns records into the numeric matrix a classifier consumes:
// numeric columns as-is in declared order, followed by the one-hot
// expansion of the categorical columns.
type Assembler struct {
	numCols []string
	catCols []string
	encoder *model.Encoder
}

// NewAssembler builds an assembler over the given column lists and fitted encoder.
func NewAssembler(numCols, catCols []string, encoder *model.Encoder) (*Assembler, error) {
	if encoder == nil {
		return nil, errors.New("encoder required")
	}
	if !slices.Equal(encoder.Columns, catCols) {
		return nil, fmt.Errorf("encoder columns %v do not match categorical columns %v", encoder.Columns, catCols)
	}
	return &Assembler{
		numCols: slices.Clone(numCols),
		catCols: slices.Clone(catCols),
		encoder: encoder,
	}, nil
}

// Width is the number of assembled columns.
func (a *Assembler) Width() int {
	return len(a.numCols) + a.encoder.Width()
}

// Features returns the assembled column names in matrix order.
func (a *Assembler) Features() []string {
	return slices.Concat(a.numCols, a.encoder.FeatureNames())
}

// Required returns the numeric then categorical input field names.
func (a *Assembler) Required() []string {
	return slices.Concat(a.numCols, a.catCols)
}

// Missing returns the required columns absent from any of the records, in
// declared order, and the positions of the records lacking at least one.
func (a *Assembler) Missing(records []Record) ([]string, []int) {
	var cols []string
	var rows []int

	absent := make(map[string]bool)
	for i, r := range records {
		short := false
		for _, c := range a.Required() {
			if _, ok := r[c]; !ok {
				absent[c] = true
				short = true
			}
		}
		if short {
			rows = append(rows, i)
		}
	}

	for _, c := range a.Required() {
		if absent[c] {
			cols = append(cols, c)
		}
	}
	return cols, rows
}

// Assemble builds the feature matrix for a batch. Any record missing a
// required field fails the whole batch.
func (a *Assembler) Assemble(records []Record) ([][]float64, error) {
	if cols, rows := a.Missing(records); len(cols) > 0 {
		return nil, &ValidationError{Kind: KindMissingColumns, Missing: cols, Records: rows}
	}

	x := make([][]float64, len(records))
	for i, r := range records {
		row, err := a.assemble(r)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Records = []int{i}
			}
			return nil, err
		}
		x[i] = row
	}
	return x, nil
}

// AssembleOne builds the feature vector for a single record.
func (a *Assembler) AssembleOne(r Record) ([]float64, error) {
	if cols, _ := a.Missing([]Record{r}); len(cols) > 0 {
		return nil, &ValidationError{Kind: KindMissingColumns, Missing: cols}
	}
	return a.assemble(r)
}

func (a *Assembler) assemble(r Record) ([]float64, error) {
	row := make([]float64, a.Width())

	for i, c := range a.numCols {
		v, ok := NumericValue(r[c])
		if !ok {
			return nil, &ValidationError{
				Kind:   KindInvalidValue,
				Column: c,
				Reason: fmt.Sprintf("expected a number, got %T", r[c]),
			}
		}
		row[i] = v
	}

	cats := make([]string, len(a.catCols))
	for i, c := range a.catCols {
		v, ok := model.CategoryValue(r[c])
		if !ok {
			return nil, &ValidationError{
				Kind:   KindInvalidValue,
				Column: c,
				Reason: fmt.Sprintf("expected a category, got %T", r[c]),
			}
		}
		cats[i] = v
	}

	if err := a.encoder.Transform(cats, row[len(a.numCols):]); err != nil {
		return nil, fmt.Errorf("error encoding categorical columns: %w", err)
	}
	return row, nil
}
