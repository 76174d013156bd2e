// Package api implements the hosted scoring endpoint: request parsing,
// validation and response shaping shared by the HTTP server and the
// Lambda handler.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	msgMissingBody  = "missing request body"
	msgExpectedList = "expected a list of records"
	msgExpectedObj  = "expected a record object"
	msgNoRecords    = "no records to score"
	msgInternal     = "internal error"
)

// Recorder receives every successfully scored batch.
type Recorder interface {
	Record(ctx context.Context, source string, scored []score.Record) error
}

// Response is a status code with a JSON body.
type Response struct {
	Status int
	Body   []byte
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	Features    []string                   `json:"features"`
	NumCols     []string                   `json:"num_cols"`
	CatCols     []string                   `json:"cat_cols"`
	Metrics     *model.Metrics             `json:"metrics,omitempty"`
	TrainedAt   time.Time                  `json:"trained_at"`
	Importances []*model.FeatureImportance `json:"importances"`
}

// Handler scores request bodies against one pipeline.
type Handler struct {
	pipeline *score.Pipeline
	schema   *jsonschema.Schema
	recorder Recorder
	source   string
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder stores every scored batch under the given source name.
func WithRecorder(r Recorder, source string) Option {
	return func(h *Handler) {
		h.recorder = r
		h.source = source
	}
}

// New creates a handler for the pipeline.
func New(p *score.Pipeline, opts ...Option) (*Handler, error) {
	if p == nil {
		return nil, errors.New("pipeline required")
	}

	s, err := recordsSchema(p.Artifact())
	if err != nil {
		return nil, err
	}

	h := &Handler{pipeline: p, schema: s}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Batch scores a JSON array of records and returns them with the
// predicted_churn_prob, health_score and top_driver columns added.
func (h *Handler) Batch(ctx context.Context, body []byte) (resp *Response) {
	defer recoverInternal(&resp)

	v, bad := decode(body)
	if bad != nil {
		return bad
	}

	items, ok := v.([]any)
	if !ok {
		return errorResponse(http.StatusBadRequest, msgExpectedList)
	}
	if len(items) == 0 {
		return errorResponse(http.StatusBadRequest, msgNoRecords)
	}

	records := make([]score.Record, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return errorResponse(http.StatusBadRequest, fmt.Sprintf("%s: item %d is not an object", msgExpectedList, i))
		}
		records[i] = score.Record(m)
	}

	if cols, rows := h.pipeline.Assembler().Missing(records); len(cols) > 0 {
		return errorResponse(http.StatusBadRequest,
			(&score.ValidationError{Kind: score.KindMissingColumns, Missing: cols, Records: rows}).Error())
	}

	if err := h.schema.Validate(v); err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid records: %v", err))
	}

	out, err := h.pipeline.ScoreBatch(records)
	if err != nil {
		return failure(err)
	}

	if h.recorder != nil {
		if err := h.recorder.Record(ctx, h.source, out); err != nil {
			slog.Error("failed to record scored batch", "records", len(out), "error", err)
		}
	}

	return jsonResponse(http.StatusOK, out)
}

// One scores a single JSON record object and returns the minimal result.
func (h *Handler) One(_ context.Context, body []byte) (resp *Response) {
	defer recoverInternal(&resp)

	v, bad := decode(body)
	if bad != nil {
		return bad
	}

	m, ok := v.(map[string]any)
	if !ok {
		return errorResponse(http.StatusBadRequest, msgExpectedObj)
	}

	if cols, _ := h.pipeline.Assembler().Missing([]score.Record{m}); len(cols) > 0 {
		return errorResponse(http.StatusBadRequest,
			(&score.ValidationError{Kind: score.KindMissingColumns, Missing: cols}).Error())
	}

	if err := h.schema.Validate([]any{v}); err != nil {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid record: %v", err))
	}

	res, err := h.pipeline.ScoreOne(score.Record(m))
	if err != nil {
		return failure(err)
	}
	return jsonResponse(http.StatusOK, res)
}

// Model describes the artifact the handler scores against.
func (h *Handler) Model() (*ModelInfo, error) {
	a := h.pipeline.Artifact()
	imp, err := model.RankedImportances(a)
	if err != nil {
		return nil, err
	}
	return &ModelInfo{
		Features:    a.Features,
		NumCols:     a.NumCols,
		CatCols:     a.CatCols,
		Metrics:     a.Metrics,
		TrainedAt:   a.TrainedAt,
		Importances: imp,
	}, nil
}

func decode(body []byte) (any, *Response) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errorResponse(http.StatusBadRequest, msgMissingBody)
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return v, nil
}

func failure(err error) *Response {
	if score.IsValidation(err) {
		return errorResponse(http.StatusBadRequest, err.Error())
	}
	slog.Error("scoring failed", "error", err)
	return errorResponse(http.StatusInternalServerError, msgInternal)
}

func recoverInternal(resp **Response) {
	if r := recover(); r != nil {
		slog.Error("recovered from panic while scoring", "panic", r)
		*resp = errorResponse(http.StatusInternalServerError, msgInternal)
	}
}

func jsonResponse(status int, v any) *Response {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		return errorResponse(http.StatusInternalServerError, msgInternal)
	}
	return &Response{Status: status, Body: b}
}

func errorResponse(status int, msg string) *Response {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return &Response{Status: status, Body: b}
}
