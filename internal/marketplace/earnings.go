package marketplace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tydee/tydee-pro/internal/types"
)

var hundred = decimal.NewFromInt(100)

type period struct {
	from, to time.Time // half-open [from, to); zero to means unbounded
}

func (p period) contains(t time.Time) bool {
	if t.Before(p.from) {
		return false
	}
	return p.to.IsZero() || t.Before(p.to)
}

// periods returns the current and previous reporting windows for tf at now.
// Weekly is a rolling seven days; monthly and yearly follow the calendar.
func periods(tf types.Timeframe, now time.Time) (current, previous period) {
	switch tf {
	case types.TimeframeMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return period{from: start, to: start.AddDate(0, 1, 0)}, period{from: start.AddDate(0, -1, 0), to: start}
	case types.TimeframeYearly:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return period{from: start, to: start.AddDate(1, 0, 0)}, period{from: start.AddDate(-1, 0, 0), to: start}
	default:
		weekAgo := now.Add(-7 * 24 * time.Hour)
		return period{from: weekAgo}, period{from: now.Add(-14 * 24 * time.Hour), to: weekAgo}
	}
}

// payoutAmount is the final price, or the budget for jobs completed before prices were recorded.
func payoutAmount(j *types.Job) decimal.Decimal {
	switch {
	case j.FinalPrice != nil:
		return decimal.NewFromFloat(*j.FinalPrice)
	case j.Budget != nil:
		return decimal.NewFromFloat(*j.Budget)
	default:
		return decimal.Zero
	}
}

func payoutDate(j *types.Job) time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.CreatedAt
}

// Earnings summarizes the professional's completed jobs for the timeframe containing now,
// net of the platform commission, with the trend against the previous period.
// A zero now means the current time.
func (s *Service) Earnings(ctx context.Context, uid string, tf types.Timeframe, now time.Time) (*types.EarningsSummary, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}
	if now.IsZero() {
		now = s.now()
	}
	if !tf.Valid() {
		return nil, &ErrInvalidArgument{Field: "timeframe", Message: "must be one of: weekly, monthly, yearly"}
	}

	jobs, err := s.store.ListJobs(ctx, types.JobFilter{
		Statuses:               []types.Status{types.StatusCompleted},
		AssignedProfessionalID: uid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed jobs: %w", err)
	}
	return summarize(jobs, tf, now, decimal.NewFromFloat(s.opts.CommissionRate)), nil
}

func summarize(jobs []types.Job, tf types.Timeframe, now time.Time, rate decimal.Decimal) *types.EarningsSummary {
	current, previous := periods(tf, now)

	curGross, prevGross := decimal.Zero, decimal.Zero
	payouts := []types.Payout{}
	for i := range jobs {
		j := &jobs[i]
		when := payoutDate(j)
		amount := payoutAmount(j)
		switch {
		case current.contains(when):
			curGross = curGross.Add(amount)
			payouts = append(payouts, types.Payout{
				JobID:       j.ID,
				Title:       j.Title,
				Amount:      amount.StringFixed(2),
				CompletedAt: when,
			})
		case previous.contains(when):
			prevGross = prevGross.Add(amount)
		}
	}
	sort.SliceStable(payouts, func(a, b int) bool {
		return payouts[a].CompletedAt.After(payouts[b].CompletedAt)
	})

	curCommission := curGross.Mul(rate).Round(2)
	curNet := curGross.Sub(curCommission)
	prevNet := prevGross.Sub(prevGross.Mul(rate).Round(2))

	trend := decimal.Zero
	switch {
	case prevNet.IsPositive():
		trend = curNet.Sub(prevNet).Div(prevNet).Mul(hundred)
	case curNet.IsPositive():
		trend = hundred
	}
	trend = trend.Round(1)
	trendPercent, _ := trend.Float64()

	sign := ""
	if !trend.IsNegative() {
		sign = "+"
	}

	return &types.EarningsSummary{
		Timeframe:     tf,
		Gross:         curGross.StringFixed(2),
		Commission:    curCommission.StringFixed(2),
		Net:           curNet.StringFixed(2),
		Jobs:          len(payouts),
		PreviousNet:   prevNet.StringFixed(2),
		TrendPercent:  trendPercent,
		TrendPositive: !trend.IsNegative(),
		Formatted:     fmt.Sprintf("%s%s%% vs last period", sign, trend.StringFixed(1)),
		Payouts:       payouts,
	}
}

// Dashboard gathers the professional's profile, open jobs, active services and bookings.
func (s *Service) Dashboard(ctx context.Context, uid string) (*types.Dashboard, error) {
	if uid == "" {
		return nil, &ErrUnauthenticated{}
	}

	var (
		pro      *types.Professional
		open     []types.Job
		services []types.ServiceOffering
		bookings []types.Job
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pro, err = s.Professional(gctx, uid)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = s.AvailableJobs(gctx, uid)
		return err
	})
	g.Go(func() error {
		var err error
		services, err = s.Services(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = s.Bookings(gctx, uid, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics := types.DashboardMetrics{
		AvailableJobs:  len(open),
		ActiveServices: len(services),
	}
	total := decimal.Zero
	rate := decimal.NewFromFloat(s.opts.CommissionRate)
	for i := range bookings {
		switch bookings[i].Status {
		case types.StatusAssigned, types.StatusInProgress:
			metrics.UpcomingJobs++
		case types.StatusCompleted:
			metrics.JobsCompleted++
			gross := payoutAmount(&bookings[i])
			total = total.Add(gross.Sub(gross.Mul(rate).Round(2)))
		}
	}
	metrics.TotalEarnings = total.StringFixed(2)

	return &types.Dashboard{
		Professional: pro,
		Metrics:      metrics,
		Jobs:         open,
		Services:     services,
	}, nil
}
