package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mchmarny/churnscore/pkg/score"
)

// Split partitions records into train and test sets of which test holds
// testSize records, keeping the label proportions of the input in both.
func Split(records []score.Record, testSize int, label string, seed uint64) (train, test []score.Record, err error) {
	if testSize <= 0 || testSize >= len(records) {
		return nil, nil, fmt.Errorf("test size must be between 1 and %d: %d", len(records)-1, testSize)
	}

	groups := make(map[float64][]int)
	var keys []float64
	for i, r := range records {
		v, ok := score.NumericValue(r[label])
		if !ok {
			return nil, nil, fmt.Errorf("record %d: label %s is not numeric: %v", i, label, r[label])
		}
		if _, seen := groups[v]; !seen {
			keys = append(keys, v)
		}
		groups[v] = append(groups[v], i)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	ratio := float64(testSize) / float64(len(records))

	testIdx := make(map[int]bool, testSize)
	remaining := testSize
	for k, key := range keys {
		idx := groups[key]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := int(math.Round(float64(len(idx)) * ratio))
		if k == len(keys)-1 {
			n = remaining
		}
		n = min(max(n, 0), len(idx), remaining)
		for _, i := range idx[:n] {
			testIdx[i] = true
		}
		remaining -= n
	}

	for i, r := range records {
		if testIdx[i] {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test, nil
}
