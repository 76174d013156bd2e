package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/churnscore/pkg/score"
)

const (
	// RunListLimitDefault caps ListRuns when no limit is given.
	RunListLimitDefault = 20

	timeFormat = "2006-01-02T15:04:05.000000Z"

	insertRunSQL = `INSERT INTO run (id, source, created_at, records, mean_prob, mean_health)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	insertRunResultSQL = `INSERT INTO run_result (run_id, position, customer_id,
			predicted_churn_prob, health_score, top_driver)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	selectRunsSQL = `SELECT id, source, created_at, records, mean_prob, mean_health
		FROM run
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	selectRunSQL = `SELECT id, source, created_at, records, mean_prob, mean_health
		FROM run
		WHERE id = ?
	`

	selectRunResultsSQL = `SELECT position, customer_id, predicted_churn_prob, health_score, top_driver
		FROM run_result
		WHERE run_id = ?
		ORDER BY position
	`

	deleteRunSQL = `DELETE FROM run WHERE id = ?`
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored scoring batch.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source" yaml:"source"`
	CreatedAt  time.Time `json:"created_at" yaml:"createdAt"`
	Records    int       `json:"records" yaml:"records"`
	MeanProb   float64   `json:"mean_prob" yaml:"meanProb"`
	MeanHealth float64   `json:"mean_health" yaml:"meanHealth"`
}

// RunResult is one scored customer of a run.
type RunResult struct {
	Position           int     `json:"position" yaml:"position"`
	CustomerID         string  `json:"customer_id" yaml:"customerID"`
	PredictedChurnProb float64 `json:"predicted_churn_prob" yaml:"predictedChurnProb"`
	HealthScore        float64 `json:"health_score" yaml:"healthScore"`
	TopDriver          string  `json:"top_driver" yaml:"topDriver"`
}

// SaveRun stores batch-scored records as a new run in one transaction.
func SaveRun(ctx context.Context, db *sql.DB, source string, scored []score.Record) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if source == "" {
		return nil, errors.New("run source required")
	}

	results := make([]*RunResult, len(scored))
	run := &Run{
		ID:        uuid.NewString(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Records:   len(scored),
	}

	for i, r := range scored {
		res, err := toRunResult(i, r)
		if err != nil {
			return nil, err
		}
		results[i] = res
		run.MeanProb += res.PredictedChurnProb
		run.MeanHealth += res.HealthScore
	}
	if len(scored) > 0 {
		run.MeanProb = score.Round(run.MeanProb/float64(len(scored)), 4)
		run.MeanHealth = score.Round(run.MeanHealth/float64(len(scored)), 2)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, bind(db, insertRunSQL), run.ID, run.Source,
		run.CreatedAt.Format(timeFormat), run.Records, run.MeanProb, run.MeanHealth); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, bind(db, insertRunResultSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run result statement: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		if _, err := stmt.ExecContext(ctx, run.ID, res.Position, res.CustomerID,
			res.PredictedChurnProb, res.HealthScore, res.TopDriver); err != nil {
			return nil, fmt.Errorf("failed to insert run result %d: %w", res.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = RunListLimitDefault
	}

	rows, err := db.Query(bind(db, selectRunsSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return list, nil
}

// GetRun returns one run by ID.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	r, err := scanRun(db.QueryRow(bind(db, selectRunSQL), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// GetRunResults returns the scored customers of a run in input order.
func GetRunResults(db *sql.DB, id string) ([]*RunResult, error) {
	if _, err := GetRun(db, id); err != nil {
		return nil, err
	}

	rows, err := db.Query(bind(db, selectRunResultsSQL), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run results: %w", err)
	}
	defer rows.Close()

	list := make([]*RunResult, 0)
	for rows.Next() {
		r := &RunResult{}
		if err := rows.Scan(&r.Position, &r.CustomerID, &r.PredictedChurnProb, &r.HealthScore, &r.TopDriver); err != nil {
			return nil, fmt.Errorf("failed to scan run result: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run results: %w", err)
	}
	return list, nil
}

// DeleteRun removes a run and its results.
func DeleteRun(db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	res, err := db.Exec(bind(db, deleteRunSQL), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Recorder stores scored batches as runs.
type Recorder struct {
	DB *sql.DB
}

// Record implements the scoring endpoint's batch recorder.
func (r *Recorder) Record(ctx context.Context, source string, scored []score.Record) error {
	_, err := SaveRun(ctx, r.DB, source, scored)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var created string
	if err := row.Scan(&r.ID, &r.Source, &created, &r.Records, &r.MeanProb, &r.MeanHealth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run time %q: %w", created, err)
	}
	r.CreatedAt = t
	return r, nil
}

func toRunResult(i int, r score.Record) (*RunResult, error) {
	prob, ok := score.NumericValue(r[score.FieldProbability])
	if !ok {
		return nil, fmt.Errorf("record %d: missing %s", i, score.FieldProbability)
	}
	health, ok := score.NumericValue(r[score.FieldHealthScore])
	if !ok {
		return nil, fmt.Errorf("record %d: missing %s", i, score.FieldHealthScore)
	}
	driver, ok := r[score.FieldTopDriver].(string)
	if !ok {
		return nil, fmt.Errorf("record %d: missing %s", i, score.FieldTopDriver)
	}

	id := fmt.Sprintf("#%d", i)
	if v, ok := r["customer_id"]; ok && v != nil {
		id = fmt.Sprint(v)
	}

	return &RunResult{
		Position:           i,
		CustomerID:         id,
		PredictedChurnProb: prob,
		HealthScore:        health,
		TopDriver:          driver,
	}, nil
}
