package train

import (
	"fmt"
	"testing"

	"github.com/mchmarny/churnscore/pkg/dataset"
	"github.com/mchmarny/churnscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpec = Spec{
	NumCols: []string{"usage_drop_pct", "open_tickets"},
	CatCols: []string{"segment"},
	Label:   "churn_label",
}

func separableRecords(n int) []score.Record {
	segments := []string{"enterprise", "mid-market", "small-business"}
	list := make([]score.Record, 0, n)
	for i := 0; i < n; i++ {
		churn := i%2 == 1
		drop := float64(i % 10)
		label := 0
		if churn {
			drop += 40
			label = 1
		}
		list = append(list, score.Record{
			"customer_id":    fmt.Sprintf("CUST%05d", i),
			"usage_drop_pct": drop,
			"open_tickets":   i % 3,
			"segment":        segments[i%len(segments)],
			"churn_label":    label,
		})
	}
	return list
}

func TestTrain_SeparableData(t *testing.T) {
	a, err := Train(separableRecords(120), separableRecords(40), testSpec, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	assert.Equal(t, []string{
		"usage_drop_pct", "open_tickets",
		"segment_enterprise", "segment_mid-market", "segment_small-business",
	}, a.Features)
	require.NotNil(t, a.Metrics)
	assert.Equal(t, 120, a.Metrics.TrainRows)
	assert.Equal(t, 40, a.Metrics.TestRows)
	assert.GreaterOrEqual(t, a.Metrics.Accuracy, 0.95)
	assert.GreaterOrEqual(t, a.Metrics.AUC, 0.95)
	assert.False(t, a.TrainedAt.IsZero())
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit(nil, testSpec, DefaultOptions())
	assert.Error(t, err)

	_, err = Fit(separableRecords(4), testSpec, Options{C: -1})
	assert.Error(t, err)

	bad := separableRecords(4)
	bad[2]["churn_label"] = 3
	_, err = Fit(bad, testSpec, DefaultOptions())
	assert.Error(t, err)

	missing := separableRecords(4)
	delete(missing[1], "open_tickets")
	_, err = Fit(missing, testSpec, DefaultOptions())
	assert.Error(t, err)

	noLabel := testSpec
	noLabel.Label = ""
	_, err = Fit(separableRecords(4), noLabel, DefaultOptions())
	assert.Error(t, err)
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.75, Accuracy([]float64{0.9, 0.2, 0.6, 0.4}, []float64{1, 0, 0, 0}))
	assert.Equal(t, 0.0, Accuracy(nil, nil))
}

func TestAUC(t *testing.T) {
	assert.InDelta(t, 1.0, AUC([]float64{0.1, 0.2, 0.8, 0.9}, []float64{0, 0, 1, 1}), 1e-9)
	assert.InDelta(t, 0.0, AUC([]float64{0.9, 0.8, 0.2, 0.1}, []float64{0, 0, 1, 1}), 1e-9)
	assert.InDelta(t, 0.75, AUC([]float64{0.1, 0.4, 0.35, 0.8}, []float64{0, 0, 1, 1}), 1e-9)
	assert.Equal(t, 0.0, AUC([]float64{0.1, 0.2}, []float64{1, 1}))
}

func TestAUC_DoesNotReorderInput(t *testing.T) {
	probs := []float64{0.9, 0.1, 0.5}
	AUC(probs, []float64{1, 0, 1})
	assert.Equal(t, []float64{0.9, 0.1, 0.5}, probs)
}

func TestTrain_GeneratedData(t *testing.T) {
	list, err := dataset.Generate(600, 42)
	require.NoError(t, err)
	trainSet, testSet, err := dataset.Split(list, 200, dataset.LabelColumn, 42)
	require.NoError(t, err)

	spec := Spec{NumCols: dataset.NumCols, CatCols: dataset.CatCols, Label: dataset.LabelColumn}
	a, err := Train(trainSet, testSet, spec, DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, a.Features, len(dataset.NumCols)+7)
	assert.Equal(t, dataset.NumCols, a.Features[:len(dataset.NumCols)])
	assert.Greater(t, a.Metrics.AUC, 0.7)
}
