package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

// recentLimit caps the activity lists on the dashboard.
const recentLimit = 5

func (s *service) GetDashboard(ctx context.Context, req schema.GetDashboardRequest) (schema.GetDashboardResponse, error) {
	if ctx == nil {
		return schema.GetDashboardResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.GetDashboardResponse{}, err
	}
	log := logx.WithUser(ctx, userID)

	// Each goroutine writes its own variable, assembled after Wait.
	var (
		kpis        []schema.KPI
		assessments []schema.Assessment
		plans       []schema.DeploymentPlan
		feedback    []schema.FeedbackRecord
		active      schema.AssessmentID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		kpis, err = s.computeKPIs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assessments, err = s.assessments.Recent(gctx, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		plans, err = s.plans.Recent(gctx, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		feedback, err = s.feedback.Recent(gctx, recentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = s.preferences.ActiveAssessment(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Warn("service dashboard failed", "err", err)
		return schema.GetDashboardResponse{}, err
	}
	return schema.GetDashboardResponse{
		KPIs:              kpis,
		RecentAssessments: assessments,
		RecentPlans:       plans,
		RecentFeedback:    feedback,
		ActiveAssessment:  active,
	}, nil
}

func (s *service) GetChart(ctx context.Context, req schema.GetChartRequest) (schema.GetChartResponse, error) {
	if ctx == nil {
		return schema.GetChartResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetChartResponse{}, err
	}
	days, err := periodDays(req.Period)
	if err != nil {
		return schema.GetChartResponse{}, err
	}
	// Window is dense whole days ending with today.
	to := s.now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -days)

	var chart schema.ChartSeries
	switch req.Chart {
	case schema.ChartAssessments:
		buckets, err := s.stats.AssessmentsCompletedDaily(ctx, from, to)
		if err != nil {
			return schema.GetChartResponse{}, err
		}
		chart = denseSeries(from, days, "Completed", buckets, func(d DayCount) float64 { return float64(d.Count) })
	case schema.ChartFeedback:
		buckets, err := s.stats.FeedbackRatingDaily(ctx, from, to)
		if err != nil {
			return schema.GetChartResponse{}, err
		}
		chart = denseSeries(from, days, "Average rating", buckets, func(d DayCount) float64 { return d.Value })
	case schema.ChartUsage:
		buckets, err := s.stats.PageViewsDaily(ctx, from, to)
		if err != nil {
			return schema.GetChartResponse{}, err
		}
		chart = denseSeries(from, days, "Page views", buckets, func(d DayCount) float64 { return float64(d.Count) })
	case schema.ChartDeployments:
		buckets, err := s.stats.PlansDaily(ctx, from, to)
		if err != nil {
			return schema.GetChartResponse{}, err
		}
		chart = densePlanSeries(from, days, buckets)
	default:
		return schema.GetChartResponse{}, fmt.Errorf("%w: unknown chart %q", schema.ErrInvalidRequest, req.Chart)
	}
	return schema.GetChartResponse{Chart: chart}, nil
}

func (s *service) computeKPIs(ctx context.Context) ([]schema.KPI, error) {
	days := s.cfg.KPIWindowDays
	window := fmt.Sprintf("%dd", days)
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	prevFrom := from.AddDate(0, 0, -days)

	completed, err := s.stats.AssessmentsCompleted(ctx, from, to)
	if err != nil {
		return nil, err
	}
	prevCompleted, err := s.stats.AssessmentsCompleted(ctx, prevFrom, from)
	if err != nil {
		return nil, err
	}
	readiness, _, err := s.stats.AverageReadinessScore(ctx, from, to)
	if err != nil {
		return nil, err
	}
	prevReadiness, _, err := s.stats.AverageReadinessScore(ctx, prevFrom, from)
	if err != nil {
		return nil, err
	}
	applied, _, err := s.stats.PlansApplied(ctx, from, to)
	if err != nil {
		return nil, err
	}
	prevApplied, _, err := s.stats.PlansApplied(ctx, prevFrom, from)
	if err != nil {
		return nil, err
	}
	actives, err := s.stats.ActiveUsers(ctx, from, to)
	if err != nil {
		return nil, err
	}
	prevActives, err := s.stats.ActiveUsers(ctx, prevFrom, from)
	if err != nil {
		return nil, err
	}
	rating, _, err := s.stats.AverageFeedbackRating(ctx, from, to)
	if err != nil {
		return nil, err
	}
	prevRating, _, err := s.stats.AverageFeedbackRating(ctx, prevFrom, from)
	if err != nil {
		return nil, err
	}
	cost, err := s.stats.MonthlyCostTotal(ctx)
	if err != nil {
		return nil, err
	}

	return []schema.KPI{
		makeKPI("assessments_completed", "Assessments completed", "", float64(completed), float64(prevCompleted), window),
		makeKPI("avg_readiness", "Average readiness score", "pts", round1(readiness), round1(prevReadiness), window),
		makeKPI("plans_applied", "Plans applied", "", float64(applied), float64(prevApplied), window),
		makeKPI("active_users", "Active users", "", float64(actives), float64(prevActives), window),
		makeKPI("avg_feedback", "Average feedback rating", "/5", round1(rating), round1(prevRating), window),
		// Cost is a point-in-time total, not windowed, so it carries no delta.
		makeKPI("monthly_cost", "Estimated monthly cost", "USD", round1(cost), round1(cost), window),
	}, nil
}

// makeKPI derives trend and delta from the previous window. Moves inside one
// percent either way count as flat.
func makeKPI(key, label, unit string, cur, prev float64, window string) schema.KPI {
	var delta float64
	switch {
	case prev != 0:
		delta = round1((cur - prev) / prev * 100)
	case cur != 0:
		delta = 100
	}
	trend := schema.TrendFlat
	switch {
	case delta > 1:
		trend = schema.TrendUp
	case delta < -1:
		trend = schema.TrendDown
	}
	return schema.KPI{
		Key:      key,
		Label:    label,
		Value:    cur,
		Unit:     unit,
		Trend:    trend,
		DeltaPct: delta,
		Window:   window,
	}
}

func periodDays(p schema.ChartPeriod) (int, error) {
	switch p {
	case schema.Period7d:
		return 7, nil
	case schema.Period30d:
		return 30, nil
	case schema.Period90d:
		return 90, nil
	case schema.Period1y:
		return 365, nil
	case "":
		return 30, nil
	default:
		return 0, fmt.Errorf("%w: unknown period %q", schema.ErrInvalidRequest, p)
	}
}

// denseSeries fills one value per day so sparse store buckets chart evenly.
func denseSeries(from time.Time, days int, name string, buckets []DayCount, value func(DayCount) float64) schema.ChartSeries {
	byDay := make(map[string]DayCount, len(buckets))
	for _, b := range buckets {
		byDay[b.Day.UTC().Format("2006-01-02")] = b
	}
	labels := make([]string, 0, days)
	values := make([]float64, 0, days)
	for i := range days {
		day := from.AddDate(0, 0, i).Format("2006-01-02")
		labels = append(labels, day)
		if b, ok := byDay[day]; ok {
			values = append(values, value(b))
		} else {
			values = append(values, 0)
		}
	}
	return schema.ChartSeries{
		Labels: labels,
		Series: []schema.ChartData{{Name: name, Values: values}},
	}
}

func densePlanSeries(from time.Time, days int, buckets []PlanDayCount) schema.ChartSeries {
	byDay := make(map[string]PlanDayCount, len(buckets))
	for _, b := range buckets {
		byDay[b.Day.UTC().Format("2006-01-02")] = b
	}
	labels := make([]string, 0, days)
	succeeded := make([]float64, 0, days)
	failed := make([]float64, 0, days)
	for i := range days {
		day := from.AddDate(0, 0, i).Format("2006-01-02")
		labels = append(labels, day)
		b := byDay[day]
		succeeded = append(succeeded, float64(b.Succeeded))
		failed = append(failed, float64(b.Failed))
	}
	return schema.ChartSeries{
		Labels: labels,
		Series: []schema.ChartData{
			{Name: "Succeeded", Values: succeeded},
			{Name: "Failed", Values: failed},
		},
	}
}
