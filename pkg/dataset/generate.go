package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mchmarny/churnscore/pkg/score"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// LabelColumn holds the 0/1 churn outcome.
	LabelColumn = "churn_label"

	SegmentEnterprise    = "enterprise"
	SegmentMidMarket     = "mid-market"
	SegmentSmallBusiness = "small-business"

	churnRiskThreshold = 0.35
	tenureMaxMonths    = 60
	streakMonths       = 12
)

var (
	// NumCols are the numeric model inputs in training order.
	NumCols = []string{
		"avg_daily_usage", "usage_drop_pct", "open_tickets", "failed_payments",
		"days_since_last_login", "tenure_months", "mrr",
		"recent_support_escalations", "payment_streak",
	}

	// CatCols are the categorical model inputs in training order.
	CatCols = []string{"segment", "region"}

	// FileColumns is the column order of generated files.
	FileColumns = []string{
		"customer_id", "segment", "region", "avg_daily_usage", "usage_drop_pct",
		"open_tickets", "failed_payments", "days_since_last_login", "tenure_months",
		"mrr", "recent_support_escalations", "payment_streak", LabelColumn, "health_score",
	}

	segments       = []string{SegmentEnterprise, SegmentMidMarket, SegmentSmallBusiness}
	segmentWeights = []float64{0.2, 0.5, 0.3}
	regions        = []string{"north", "south", "east", "west"}
)

// segmentProfile holds the per-segment sampling parameters.
type segmentProfile struct {
	usageMean   float64
	ticketRate  float64
	failureProb float64
	mrrPerUsage float64
}

var profiles = map[string]segmentProfile{
	SegmentEnterprise:    {usageMean: 100, ticketRate: 0.2, failureProb: 0.02, mrrPerUsage: 100},
	SegmentMidMarket:     {usageMean: 50, ticketRate: 0.8, failureProb: 0.08, mrrPerUsage: 10},
	SegmentSmallBusiness: {usageMean: 20, ticketRate: 1.5, failureProb: 0.12, mrrPerUsage: 2},
}

// Customer is one synthetic customer row.
type Customer struct {
	CustomerID               string  `mapstructure:"customer_id"`
	Segment                  string  `mapstructure:"segment"`
	Region                   string  `mapstructure:"region"`
	AvgDailyUsage            float64 `mapstructure:"avg_daily_usage"`
	UsageDropPct             float64 `mapstructure:"usage_drop_pct"`
	OpenTickets              int     `mapstructure:"open_tickets"`
	FailedPayments           int     `mapstructure:"failed_payments"`
	DaysSinceLastLogin       int     `mapstructure:"days_since_last_login"`
	TenureMonths             int     `mapstructure:"tenure_months"`
	MRR                      float64 `mapstructure:"mrr"`
	RecentSupportEscalations int     `mapstructure:"recent_support_escalations"`
	PaymentStreak            int     `mapstructure:"payment_streak"`
	ChurnLabel               int     `mapstructure:"churn_label"`
	HealthScore              int     `mapstructure:"health_score"`
}

// Record converts the customer into a scoring record.
func (c *Customer) Record() (score.Record, error) {
	var m map[string]any
	if err := mapstructure.Decode(c, &m); err != nil {
		return nil, fmt.Errorf("error converting customer %s: %w", c.CustomerID, err)
	}
	return score.Record(m), nil
}

// Generator draws synthetic customers from a seeded source.
type Generator struct {
	src rand.Source
	rng *rand.Rand
}

// NewGenerator returns a generator that yields the same customers for the same seed.
func NewGenerator(seed uint64) *Generator {
	src := rand.NewPCG(seed, seed)
	return &Generator{src: src, rng: rand.New(src)}
}

// Customer draws the customer with the given sequence number.
func (g *Generator) Customer(i int) *Customer {
	segment := g.weighted(segments, segmentWeights)
	region := regions[g.rng.IntN(len(regions))]
	p := profiles[segment]

	usage := math.Max(0, distuv.Normal{Mu: p.usageMean, Sigma: 30, Src: g.src}.Rand())

	dropMean := 20.0
	if usage > 80 {
		dropMean = 0
	}
	drop := math.Max(0, distuv.Normal{Mu: dropMean, Sigma: 10, Src: g.src}.Rand())

	tickets := int(distuv.Poisson{Lambda: p.ticketRate, Src: g.src}.Rand())
	failed := int(distuv.Binomial{N: 2, P: p.failureProb, Src: g.src}.Rand())

	loginMean := 30.0
	if usage > 60 {
		loginMean = 10
	}
	lastLogin := int(math.Max(0, distuv.Exponential{Rate: 1 / loginMean, Src: g.src}.Rand()))

	c := &Customer{
		CustomerID:         fmt.Sprintf("CUST%05d", i),
		Segment:            segment,
		Region:             region,
		AvgDailyUsage:      score.Round(usage, 2),
		UsageDropPct:       score.Round(drop, 2),
		OpenTickets:        tickets,
		FailedPayments:     failed,
		DaysSinceLastLogin: lastLogin,
		TenureMonths:       1 + g.rng.IntN(tenureMaxMonths-1),
		MRR:                score.Round(usage*p.mrrPerUsage, 2),
		PaymentStreak:      max(0, streakMonths-failed*3-lastLogin/30),
	}
	if tickets > 2 {
		c.RecentSupportEscalations = 1
	}

	// label and health use the unrounded draws
	risk := 0.4*(drop/50) + 0.3*(float64(tickets)/5) + 0.2*(float64(failed)/2) +
		0.1*math.Min(1, float64(lastLogin)/60)
	if risk > churnRiskThreshold || (failed > 0 && drop > 10) {
		c.ChurnLabel = 1
	}
	c.HealthScore = int(math.Max(0, math.Min(100, 100-risk*100)))

	return c
}

func (g *Generator) weighted(values []string, weights []float64) string {
	r := g.rng.Float64()
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return values[i]
		}
	}
	return values[len(values)-1]
}

// Generate returns n synthetic customer records.
func Generate(n int, seed uint64) ([]score.Record, error) {
	if n <= 0 {
		return nil, fmt.Errorf("record count must be positive: %d", n)
	}

	g := NewGenerator(seed)
	list := make([]score.Record, n)
	for i := range n {
		r, err := g.Customer(i).Record()
		if err != nil {
			return nil, err
		}
		list[i] = r
	}
	return list, nil
}
