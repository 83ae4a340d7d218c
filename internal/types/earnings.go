package types

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe selects the reporting period of an earnings summary.
type Timeframe string

// Supported timeframes.
const (
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
	TimeframeYearly  Timeframe = "yearly"
)

// Valid reports whether the timeframe is one of the supported values.
func (t Timeframe) Valid() bool {
	return t == TimeframeWeekly || t == TimeframeMonthly || t == TimeframeYearly
}

// ParseTimeframe accepts the timeframe names used by the app ("week", "month", "year" included).
// An empty value means weekly.
func ParseTimeframe(raw string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "weekly", "week":
		return TimeframeWeekly, nil
	case "monthly", "month":
		return TimeframeMonthly, nil
	case "yearly", "year":
		return TimeframeYearly, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", raw)
}

// Payout is one completed job as shown in the payout history.
type Payout struct {
	JobID       string    `json:"jobId"`
	Title       string    `json:"title"`
	Amount      string    `json:"amount"`
	CompletedAt time.Time `json:"completedAt"`
}

// EarningsSummary is the professional's payout accounting for one period.
// Money values are decimal strings in ZAR with two places.
type EarningsSummary struct {
	Timeframe     Timeframe `json:"timeframe"`
	Gross         string    `json:"gross"`
	Commission    string    `json:"commission"`
	Net           string    `json:"net"`
	Jobs          int       `json:"jobs"`
	PreviousNet   string    `json:"previousNet"`
	TrendPercent  float64   `json:"trendPercent"`
	TrendPositive bool      `json:"trendPositive"`
	Formatted     string    `json:"formatted"`
	Payouts       []Payout  `json:"payouts"`
}

// DashboardMetrics are the headline numbers on the professional dashboard.
type DashboardMetrics struct {
	AvailableJobs  int    `json:"availableJobs"`
	ActiveServices int    `json:"activeServices"`
	UpcomingJobs   int    `json:"upcomingJobs"`
	JobsCompleted  int    `json:"jobsCompleted"`
	TotalEarnings  string `json:"totalEarnings"`
}

// Dashboard bundles everything the professional home screen shows.
type Dashboard struct {
	Professional *Professional     `json:"user"`
	Metrics      DashboardMetrics  `json:"metrics"`
	Jobs         []Job             `json:"jobs"`
	Services     []ServiceOffering `json:"services"`
}
