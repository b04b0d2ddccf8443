package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
)

var hundred = decimal.NewFromInt(100)

// Percent returns num/den*100 rounded to two places, or 0 when den is 0.
func Percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(num)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(den))).
		Round(2).
		InexactFloat64()
}

// Summarize turns the grouped counts into the report. ResponseRate is
// delivered/sent: READ messages count in neither term.
func Summarize(byType map[communications.Type]int, byStatus map[communications.Status]int, followUps FollowUpTotals) Metrics {
	m := Metrics{
		ByType:        make(map[communications.Type]int, len(byType)),
		ByStatus:      make(map[communications.Status]int, len(byStatus)),
		MonthlyTrends: []TrendPoint{},
	}
	for t, n := range byType {
		m.ByType[t] = n
		m.TotalCommunications += n
	}
	for st, n := range byStatus {
		m.ByStatus[st] = n
	}
	m.ResponseRate = Percent(m.ByStatus[communications.StatusDelivered], m.ByStatus[communications.StatusSent])
	m.FollowUpEffectiveness = Effectiveness{
		TotalFollowUps:     followUps.Total,
		CompletedFollowUps: followUps.Completed,
		ConversionRate:     Percent(followUps.Converted, followUps.Total),
	}
	return m
}
