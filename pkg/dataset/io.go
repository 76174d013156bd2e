// Package dataset reads and writes customer records and generates the
// synthetic churn dataset used to train the demo model.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/mchmarny/churnscore/pkg/score"
)

const (
	extCSV  = ".csv"
	extJSON = ".json"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadFile loads records from a .csv or .json file.
func ReadFile(path string) ([]score.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case extCSV:
		return ReadCSV(f)
	case extJSON:
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// WriteFile saves records to a .csv or .json file.
func WriteFile(path string, records []score.Record, columns []string) (retErr error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != extCSV && ext != extJSON {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file: %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if ext == extJSON {
		return WriteJSON(f, records)
	}
	return WriteCSV(f, records, columns)
}

// ReadCSV parses a header row followed by records. Values that parse as
// numbers become float64, everything else stays a string.
func ReadCSV(r io.Reader) ([]score.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv input is empty")
		}
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}

	list := make([]score.Record, 0)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv line %d: %w", line, err)
		}

		rec := make(score.Record, len(header))
		for i, col := range header {
			rec[col] = parseValue(row[i])
		}
		list = append(list, rec)
	}

	return list, nil
}

// WriteCSV writes records with the given column order. When columns is
// empty the sorted union of all record fields is used.
func WriteCSV(w io.Writer, records []score.Record, columns []string) error {
	if len(columns) == 0 {
		columns = Columns(records)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			row[i] = formatValue(r[c])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("error writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadJSON decodes a JSON array of record objects.
func ReadJSON(r io.Reader) ([]score.Record, error) {
	var list []score.Record
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("error decoding json records: %w", err)
	}
	return list, nil
}

// WriteJSON encodes records as an indented JSON array.
func WriteJSON(w io.Writer, records []score.Record) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(records); err != nil {
		return fmt.Errorf("error encoding json records: %w", err)
	}
	return nil
}

// Columns returns the sorted union of the record field names.
func Columns(records []score.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
