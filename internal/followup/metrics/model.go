package metrics

import (
	"time"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
)

// TrendMonths is how many calendar months, the current one included, the
// monthly trend covers.
const TrendMonths = 6

// Filter narrows the aggregation window. Nil bounds leave a side open; both
// bounds are inclusive.
type Filter struct {
	Start   *time.Time
	End     *time.Time
	ActorID string
}

// FollowUpTotals are the follow-up counts inside a window. Converted counts
// follow-ups whose linked quotation is APPROVED.
type FollowUpTotals struct {
	Total     int
	Completed int
	Converted int
}

// Effectiveness summarises how follow-ups turned out.
type Effectiveness struct {
	TotalFollowUps     int     `json:"totalFollowUps"`
	CompletedFollowUps int     `json:"completedFollowUps"`
	ConversionRate     float64 `json:"conversionRate"`
}

// TrendPoint is one calendar month of activity, keyed YYYY-MM.
type TrendPoint struct {
	Month          string `json:"month"`
	Communications int    `json:"communications"`
	FollowUps      int    `json:"followUps"`
	Conversions    int    `json:"conversions"`
}

// Metrics is the communication effectiveness report.
type Metrics struct {
	TotalCommunications   int                           `json:"totalCommunications"`
	ByType                map[communications.Type]int   `json:"byType"`
	ByStatus              map[communications.Status]int `json:"byStatus"`
	ResponseRate          float64                       `json:"responseRate"`
	FollowUpEffectiveness Effectiveness                 `json:"followUpEffectiveness"`
	MonthlyTrends         []TrendPoint                  `json:"monthlyTrends"`
}
