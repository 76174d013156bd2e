// Package insights summarizes scored customers the way the retention
// dashboard presents them: health distribution, risk levels and the
// customers most at risk with a suggested intervention.
package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mchmarny/churnscore/pkg/score"
)

const (
	// TopDefault is the number of at-risk customers listed by default.
	TopDefault = 5

	RiskLow    = "Low (<40)"
	RiskMedium = "Medium (40-70)"
	RiskHigh   = "High (>70)"

	riskMediumFloor = 40
	riskHighFloor   = 70
	riskBlend       = 0.5
	idColumn        = "customer_id"
)

var (
	healthBins = []float64{0, 20, 40, 60, 80, 100}
	riskLevels = []string{RiskLow, RiskMedium, RiskHigh}
)

// Bucket is a labeled count.
type Bucket struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// AtRisk is one row of the at-risk table.
type AtRisk struct {
	CustomerID   string  `json:"customer_id" yaml:"customerID"`
	HealthScore  float64 `json:"health_score" yaml:"healthScore"`
	RiskScore    float64 `json:"risk_score" yaml:"riskScore"`
	FinalRisk    float64 `json:"final_risk" yaml:"finalRisk"`
	RiskLevel    string  `json:"risk_level" yaml:"riskLevel"`
	TopDriver    string  `json:"top_driver" yaml:"topDriver"`
	Intervention string  `json:"intervention" yaml:"intervention"`
}

// Summary is the dashboard view over a scored batch.
type Summary struct {
	Customers  int       `json:"customers" yaml:"customers"`
	MeanHealth float64   `json:"mean_health" yaml:"meanHealth"`
	Health     []*Bucket `json:"health" yaml:"health"`
	RiskLevels []*Bucket `json:"risk_levels" yaml:"riskLevels"`
	TopDrivers []*Bucket `json:"top_drivers" yaml:"topDrivers"`
	MostAtRisk []*AtRisk `json:"most_at_risk" yaml:"mostAtRisk"`
}

// RiskScore is the churn probability on a 0-100 scale.
func RiskScore(prob float64) float64 {
	return score.Round(prob*100, 2)
}

// FinalRisk blends inverse health and risk score equally.
func FinalRisk(health, risk float64) float64 {
	return score.Round((100-health)*riskBlend+risk*riskBlend, 2)
}

// RiskLevel buckets a final risk value: [0,40] Low, (40,70] Medium, (70,100] High.
func RiskLevel(finalRisk float64) string {
	switch {
	case finalRisk > riskHighFloor:
		return RiskHigh
	case finalRisk > riskMediumFloor:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Intervention suggests a retention action for a top driver.
func Intervention(driver string) string {
	switch {
	case strings.Contains(driver, "ticket"):
		return "Offer dedicated support"
	case strings.Contains(driver, "payment"):
		return "Provide discount or grace period"
	case strings.Contains(driver, "login"):
		return "Re-engagement email"
	default:
		return "Feature demo / usage training"
	}
}

// Summarize builds the dashboard summary from batch-scored records.
func Summarize(scored []score.Record, top int) (*Summary, error) {
	if top <= 0 {
		top = TopDefault
	}

	s := &Summary{
		Customers:  len(scored),
		Health:     healthBuckets(),
		RiskLevels: make([]*Bucket, len(riskLevels)),
		TopDrivers: make([]*Bucket, 0),
		MostAtRisk: make([]*AtRisk, 0, len(scored)),
	}
	for i, l := range riskLevels {
		s.RiskLevels[i] = &Bucket{Label: l}
	}

	drivers := make(map[string]int)
	var healthSum float64

	for i, r := range scored {
		health, ok := score.NumericValue(r[score.FieldHealthScore])
		if !ok {
			return nil, fmt.Errorf("record %d: missing %s", i, score.FieldHealthScore)
		}
		prob, ok := score.NumericValue(r[score.FieldProbability])
		if !ok {
			return nil, fmt.Errorf("record %d: missing %s", i, score.FieldProbability)
		}
		driver, _ := r[score.FieldTopDriver].(string)

		healthSum += health
		if b := healthBucket(health); b >= 0 {
			s.Health[b].Count++
		}

		risk := RiskScore(prob)
		final := FinalRisk(health, risk)
		level := RiskLevel(final)
		for _, b := range s.RiskLevels {
			if b.Label == level {
				b.Count++
			}
		}
		drivers[driver]++

		s.MostAtRisk = append(s.MostAtRisk, &AtRisk{
			CustomerID:   customerID(r, i),
			HealthScore:  health,
			RiskScore:    risk,
			FinalRisk:    final,
			RiskLevel:    level,
			TopDriver:    driver,
			Intervention: Intervention(driver),
		})
	}

	if len(scored) > 0 {
		s.MeanHealth = score.Round(healthSum/float64(len(scored)), 2)
	}

	sort.SliceStable(s.MostAtRisk, func(i, j int) bool {
		return s.MostAtRisk[i].FinalRisk > s.MostAtRisk[j].FinalRisk
	})
	if len(s.MostAtRisk) > top {
		s.MostAtRisk = s.MostAtRisk[:top]
	}

	for k, v := range drivers {
		s.TopDrivers = append(s.TopDrivers, &Bucket{Label: k, Count: v})
	}
	sort.Slice(s.TopDrivers, func(i, j int) bool {
		if s.TopDrivers[i].Count == s.TopDrivers[j].Count {
			return s.TopDrivers[i].Label < s.TopDrivers[j].Label
		}
		return s.TopDrivers[i].Count > s.TopDrivers[j].Count
	})

	return s, nil
}

func healthBuckets() []*Bucket {
	list := make([]*Bucket, len(healthBins)-1)
	for i := range list {
		list[i] = &Bucket{Label: fmt.Sprintf("(%g, %g]", healthBins[i], healthBins[i+1])}
	}
	return list
}

// healthBucket returns the right-closed bin index for v, -1 when v is 0 or
// outside the scale.
func healthBucket(v float64) int {
	for i := 1; i < len(healthBins); i++ {
		if v > healthBins[i-1] && v <= healthBins[i] {
			return i - 1
		}
	}
	return -1
}

func customerID(r score.Record, i int) string {
	if v, ok := r[idColumn]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("#%d", i)
}
