package score

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

type mockWithImportance struct {
	*MockClassifier
	importances []float64
}

func (m mockWithImportance) FeatureImportances() []float64 { return m.importances }

func testEncoder(t *testing.T) *model.Encoder {
	t.Helper()
	enc, err := model.FitEncoder([]string{"segment"}, [][]string{
		{"enterprise"}, {"mid-market"}, {"small-business"},
	})
	require.NoError(t, err)
	return enc
}

func testArtifact(t *testing.T) *model.Artifact {
	t.Helper()
	return &model.Artifact{
		Model: &model.LogisticRegression{
			Coef:      []float64{0.04, 0.5, -1.2, 0.3, 0.9},
			Intercept: -2,
		},
		Encoder: testEncoder(t),
		Features: []string{
			"usage_drop_pct", "open_tickets",
			"segment_enterprise", "segment_mid-market", "segment_small-business",
		},
		NumCols: []string{"usage_drop_pct", "open_tickets"},
		CatCols: []string{"segment"},
	}
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testArtifact(t))
	require.NoError(t, err)
	return p
}

func testRecords() []Record {
	return []Record{
		{"customer_id": "CUST00001", "usage_drop_pct": 12.5, "open_tickets": 1, "segment": "enterprise"},
		{"customer_id": "CUST00002", "usage_drop_pct": 48.0, "open_tickets": 4, "segment": "small-business"},
		{"customer_id": "CUST00003", "usage_drop_pct": 0.0, "open_tickets": 0, "segment": "mid-market"},
		{"customer_id": "CUST00004", "usage_drop_pct": 30.0, "open_tickets": 2, "segment": "government"},
	}
}

func TestScoreOne_KnownProbability(t *testing.T) {
	ctrl := gomock.NewController(t)
	clf := NewMockClassifier(ctrl)
	clf.EXPECT().Width().Return(3).AnyTimes()
	clf.EXPECT().PredictProba([][]float64{{50, 1, 0}}).Return([][]float64{{0.2, 0.8}}, nil)

	enc, err := model.FitEncoder([]string{"segment"}, [][]string{{"enterprise"}, {"smb"}})
	require.NoError(t, err)

	p, err := NewPipeline(&model.Artifact{
		Model:    mockWithImportance{MockClassifier: clf, importances: []float64{0.1, 1, 1}},
		Encoder:  enc,
		Features: []string{"usage_drop_pct", "segment_enterprise", "segment_smb"},
		NumCols:  []string{"usage_drop_pct"},
		CatCols:  []string{"segment"},
	})
	require.NoError(t, err)

	res, err := p.ScoreOne(Record{"usage_drop_pct": 50, "segment": "enterprise"})
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.PredictedChurnProb)
	assert.Equal(t, 20.0, res.HealthScore)
	assert.Equal(t, "usage_drop_pct", res.TopDriver)
}

func TestScore_HealthScoreMatchesProbability(t *testing.T) {
	a := testArtifact(t)
	p, err := NewPipeline(a)
	require.NoError(t, err)
	lr := a.Model.(*model.LogisticRegression)

	for i, r := range testRecords() {
		x, err := p.Assembler().AssembleOne(r)
		require.NoError(t, err)
		prob := model.Sigmoid(lr.Decision(x))

		res, err := p.ScoreOne(r)
		require.NoError(t, err)
		assert.Equal(t, Round((1-prob)*100, 2), res.HealthScore, "record %d", i)
		assert.Equal(t, Round(prob, 4), res.PredictedChurnProb, "record %d", i)
		assert.GreaterOrEqual(t, res.HealthScore, 0.0)
		assert.LessOrEqual(t, res.HealthScore, 100.0)
		assert.Contains(t, a.Features, res.TopDriver)
	}
}

func TestScoreOne_MissingColumns(t *testing.T) {
	p := testPipeline(t)

	_, err := p.ScoreOne(Record{"usage_drop_pct": 10, "extra": "x"})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, KindMissingColumns, ve.Kind)
	assert.Equal(t, []string{"open_tickets", "segment"}, ve.Missing)
	assert.Empty(t, ve.Records)
	assert.Equal(t, "missing columns: open_tickets, segment", err.Error())
}

func TestScoreBatch_MissingColumnsFailsBatch(t *testing.T) {
	p := testPipeline(t)
	records := testRecords()
	delete(records[0], "usage_drop_pct")
	delete(records[2], "segment")

	out, err := p.ScoreBatch(records)
	require.Error(t, err)
	assert.Nil(t, out)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"usage_drop_pct", "segment"}, ve.Missing)
	assert.Equal(t, []int{0, 2}, ve.Records)
	assert.True(t, IsValidation(err))
}

func TestScore_InvalidValue(t *testing.T) {
	p := testPipeline(t)
	records := testRecords()
	records[1]["open_tickets"] = "four"

	_, err := p.ScoreBatch(records)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, KindInvalidValue, ve.Kind)
	assert.Equal(t, "open_tickets", ve.Column)
	assert.Equal(t, []int{1}, ve.Records)
	assert.Contains(t, err.Error(), "open_tickets")

	_, err = p.ScoreOne(Record{"usage_drop_pct": 1, "open_tickets": 1, "segment": []int{1}})
	assert.True(t, IsValidation(err))
}

func TestScore_UnknownCategoryEncodesToZero(t *testing.T) {
	p := testPipeline(t)
	r := Record{"usage_drop_pct": 30.0, "open_tickets": 2, "segment": "government"}

	x, err := p.Assembler().AssembleOne(r)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 2, 0, 0, 0}, x)

	res, err := p.ScoreOne(r)
	require.NoError(t, err)
	assert.Contains(t, p.Artifact().Features, res.TopDriver)
}

func TestScoreBatch_MatchesSingleRecordPath(t *testing.T) {
	p := testPipeline(t)
	records := testRecords()

	out, err := p.ScoreBatch(records)
	require.NoError(t, err)
	require.Len(t, out, len(records))

	for i, r := range records {
		one, err := p.ScoreOne(r)
		require.NoError(t, err)

		assert.Equal(t, r["customer_id"], out[i]["customer_id"], "order preserved")
		assert.Equal(t, one.PredictedChurnProb, out[i][FieldProbability])
		assert.Equal(t, one.HealthScore, out[i][FieldHealthScore])
		assert.Equal(t, one.TopDriver, out[i][FieldTopDriver])
		assert.Len(t, out[i], len(r)+3)
	}

	// input records are not modified
	_, ok := records[0][FieldProbability]
	assert.False(t, ok)
}

func TestScoreBatch_Empty(t *testing.T) {
	p := testPipeline(t)
	out, err := p.ScoreBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScore_DeterministicAcrossArtifactRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(path, testArtifact(t)))

	var first []Record
	for i := 0; i < 3; i++ {
		a, err := model.Load(path)
		require.NoError(t, err)
		p, err := NewPipeline(a)
		require.NoError(t, err)

		out, err := p.ScoreBatch(testRecords())
		require.NoError(t, err)
		if first == nil {
			first = out
			continue
		}
		if diff := cmp.Diff(first, out); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}

	direct, err := testPipeline(t).ScoreBatch(testRecords())
	require.NoError(t, err)
	if diff := cmp.Diff(direct, first); diff != "" {
		t.Fatalf("loaded artifact scores differ (-direct +loaded):\n%s", diff)
	}
}

func TestScore_ConcurrentPipelines(t *testing.T) {
	a1 := testArtifact(t)
	a2 := testArtifact(t)
	a2.Model = &model.LogisticRegression{Coef: []float64{-0.04, -0.5, 1.2, -0.3, -0.9}, Intercept: 2}

	p1, err := NewPipeline(a1)
	require.NoError(t, err)
	p2, err := NewPipeline(a2)
	require.NoError(t, err)

	want1, err := p1.ScoreMatrix(testRecords())
	require.NoError(t, err)
	want2, err := p2.ScoreMatrix(testRecords())
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		p, want := p1, want1
		if i%2 == 1 {
			p, want = p2, want2
		}
		g.Go(func() error {
			got, err := p.ScoreMatrix(testRecords())
			if err != nil {
				return err
			}
			if diff := cmp.Diff(want, got); diff != "" {
				return fmt.Errorf("unexpected results: %s", diff)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestNewPipeline_ArtifactMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *model.Artifact)
	}{
		{"feature order", func(a *model.Artifact) {
			a.Features = slices.Clone(a.Features)
			a.Features[0], a.Features[1] = a.Features[1], a.Features[0]
		}},
		{"model width", func(a *model.Artifact) {
			a.Model = &model.LogisticRegression{Coef: []float64{1, 2, 3}}
		}},
		{"encoder columns", func(a *model.Artifact) {
			a.CatCols = []string{"region"}
		}},
		{"missing encoder", func(a *model.Artifact) {
			a.Encoder = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testArtifact(t)
			tt.mutate(a)
			_, err := NewPipeline(a)
			assert.ErrorIs(t, err, ErrArtifactMismatch)
		})
	}
}

func TestNewPipeline_NoImportanceCapability(t *testing.T) {
	ctrl := gomock.NewController(t)
	clf := NewMockClassifier(ctrl)
	clf.EXPECT().Width().Return(5).AnyTimes()

	a := testArtifact(t)
	a.Model = clf

	_, err := NewPipeline(a)
	assert.ErrorIs(t, err, ErrArtifactMismatch)
	assert.ErrorIs(t, err, model.ErrNoImportance)
}

func TestScore_InferenceFailures(t *testing.T) {
	tests := []struct {
		name  string
		proba [][]float64
		err   error
	}{
		{"classifier error", nil, errors.New("boom")},
		{"single class", [][]float64{{0.3}}, nil},
		{"out of range", [][]float64{{-0.5, 1.5}}, nil},
		{"row count", [][]float64{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			clf := NewMockClassifier(ctrl)
			clf.EXPECT().Width().Return(5).AnyTimes()
			clf.EXPECT().PredictProba(gomock.Any()).Return(tt.proba, tt.err)

			a := testArtifact(t)
			a.Model = mockWithImportance{MockClassifier: clf, importances: []float64{1, 1, 1, 1, 1}}
			p, err := NewPipeline(a)
			require.NoError(t, err)

			_, err = p.ScoreOne(testRecords()[0])
			assert.ErrorIs(t, err, ErrInference)
			assert.False(t, IsValidation(err))
		})
	}
}

func TestTopDriverIndex(t *testing.T) {
	tests := []struct {
		name string
		imp  []float64
		x    []float64
		want int
	}{
		{"largest contribution", []float64{0.1, 2, 0.5}, []float64{10, 1, 1}, 1},
		{"raw magnitude dominates", []float64{0.01, 2}, []float64{5000, 1}, 0},
		{"first on tie", []float64{1, 1, 1}, []float64{2, 2, 1}, 0},
		{"all negative", []float64{1, 1}, []float64{-3, -1}, 1},
		{"all zero", []float64{1, 1, 1}, []float64{0, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopDriverIndex(tt.imp, tt.x))
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.8, Round(0.8, 4))
	assert.Equal(t, 0.1235, Round(0.123456, 4))
	assert.Equal(t, 0.12, Round(0.125, 2))
	assert.Equal(t, 2.0, Round(2.5, 0))
	assert.Equal(t, 20.0, HealthScore(0.8))
	assert.Equal(t, 100.0, HealthScore(0))
	assert.Equal(t, 0.0, HealthScore(1))
}

func TestValidationError_Messages(t *testing.T) {
	assert.Equal(t, "missing columns: a (records: 1, 3)",
		(&ValidationError{Kind: KindMissingColumns, Missing: []string{"a"}, Records: []int{1, 3}}).Error())
	assert.Equal(t, "invalid value for column x in record 2: bad",
		(&ValidationError{Kind: KindInvalidValue, Column: "x", Records: []int{2}, Reason: "bad"}).Error())
	assert.Equal(t, "invalid input", (&ValidationError{Kind: KindShape}).Error())
	assert.False(t, IsValidation(errors.New("x")))
}
