package data

import (
	"context"
	"testing"

	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredRecords() []score.Record {
	return []score.Record{
		{
			"customer_id":          "C-1",
			score.FieldProbability: 0.8,
			score.FieldHealthScore: 20.0,
			score.FieldTopDriver:   "usage_drop_pct",
		},
		{
			score.FieldProbability: 0.2,
			score.FieldHealthScore: 80.0,
			score.FieldTopDriver:   "support_tickets_90d",
		},
	}
}

func TestSaveRun(t *testing.T) {
	db := setupTestDB(t)

	run, err := SaveRun(context.Background(), db, "test.csv", scoredRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "test.csv", run.Source)
	assert.Equal(t, 2, run.Records)
	assert.InDelta(t, 0.5, run.MeanProb, 1e-9)
	assert.InDelta(t, 50.0, run.MeanHealth, 1e-9)

	results, err := GetRunResults(db, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "C-1", results[0].CustomerID)
	assert.Equal(t, "#1", results[1].CustomerID)
	assert.Equal(t, 1, results[1].Position)
	assert.InDelta(t, 0.2, results[1].PredictedChurnProb, 1e-9)
	assert.Equal(t, "support_tickets_90d", results[1].TopDriver)
}

func TestSaveRun_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := SaveRun(ctx, nil, "x", scoredRecords())
	assert.ErrorIs(t, err, errDBNotInitialized)

	db := setupTestDB(t)
	_, err = SaveRun(ctx, db, "", scoredRecords())
	assert.Error(t, err)

	_, err = SaveRun(ctx, db, "x", []score.Record{{"customer_id": "C-1"}})
	assert.Error(t, err)

	runs, err := ListRuns(db, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveRun_Empty(t *testing.T) {
	db := setupTestDB(t)

	run, err := SaveRun(context.Background(), db, "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Records)
	assert.Zero(t, run.MeanProb)

	results, err := GetRunResults(db, run.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := SaveRun(ctx, db, "a", scoredRecords())
	require.NoError(t, err)
	second, err := SaveRun(ctx, db, "b", scoredRecords())
	require.NoError(t, err)

	runs, err := ListRuns(db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
	assert.False(t, runs[0].CreatedAt.Before(runs[1].CreatedAt))

	runs, err = ListRuns(db, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetRun(db, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = GetRunResults(db, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeleteRun(t *testing.T) {
	db := setupTestDB(t)

	run, err := SaveRun(context.Background(), db, "a", scoredRecords())
	require.NoError(t, err)

	require.NoError(t, DeleteRun(db, run.ID))
	assert.ErrorIs(t, DeleteRun(db, run.ID), ErrRunNotFound)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM run_result").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRecorder(t *testing.T) {
	db := setupTestDB(t)
	r := &Recorder{DB: db}

	require.NoError(t, r.Record(context.Background(), "api", scoredRecords()))

	runs, err := ListRuns(db, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "api", runs[0].Source)
}
