package score

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrArtifactMismatch is wrapped by pipeline construction errors when the
	// artifact's column layout, encoder and model do not line up.
	ErrArtifactMismatch = errors.New("artifact layout mismatch")

	// ErrInference is wrapped when the classifier fails or returns an
	// unusable probability matrix.
	ErrInference = errors.New("inference failed")
)

// ErrorKind classifies a ValidationError.
type ErrorKind int

const (
	// KindShape means the input is not a list of records.
	KindShape ErrorKind = iota
	// KindMissingColumns means required fields are absent.
	KindMissingColumns
	// KindInvalidValue means a required field holds a value of the wrong type.
	KindInvalidValue
)

// ValidationError reports caller input that cannot be scored.
type ValidationError struct {
	Kind ErrorKind
	// Missing lists the absent required columns in declared order.
	Missing []string
	// Column is the offending column for KindInvalidValue.
	Column string
	// Records holds the offending record positions for batch input.
	Records []int
	// Reason is a free-form detail for KindShape and KindInvalidValue.
	Reason string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingColumns:
		msg := "missing columns: " + strings.Join(e.Missing, ", ")
		if len(e.Records) > 0 {
			msg += " (records: " + joinInts(e.Records) + ")"
		}
		return msg
	case KindInvalidValue:
		msg := fmt.Sprintf("invalid value for column %s", e.Column)
		if len(e.Records) > 0 {
			msg += " in record " + joinInts(e.Records)
		}
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		return msg
	default:
		if e.Reason == "" {
			return "invalid input"
		}
		return e.Reason
	}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func joinInts(list []int) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
