// Package metrics aggregates communication and follow-up activity into
// effectiveness reports.
package metrics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Service computes reports, serving repeats from the cache.
type Service struct {
	repo  Repository
	cache *Cache
	loc   *time.Location
	now   func() time.Time
}

// NewService constructs the aggregator. cache may be nil. Trend months are
// calendar months in loc; a nil loc means time.Local.
func NewService(repo Repository, cache *Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, cache: cache, loc: loc, now: time.Now}
}

// CommunicationMetrics reports activity inside filter's window plus the
// monthly trend of the last TrendMonths months for the same actor.
func (s *Service) CommunicationMetrics(ctx context.Context, filter Filter) (*Metrics, error) {
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, shared.Validation("end date is before start date", nil)
	}
	trendStart, _ := shared.MonthRange(s.now().In(s.loc))
	trendStart = trendStart.AddDate(0, -(TrendMonths - 1), 0)

	loader := func(ctx context.Context) (any, error) {
		return s.compute(ctx, filter, trendStart)
	}

	key, err := s.cache.BuildKey(ctx, "followup", "metrics",
		bound(filter.Start), bound(filter.End), actorToken(filter.ActorID), trendStart.Format("2006-01"))
	if err != nil {
		return nil, shared.Persistence("metrics cache key", err)
	}
	var m Metrics
	if err := s.cache.FetchJSON(ctx, key, &m, loader); err != nil {
		return nil, shared.Persistence("communication metrics", err)
	}
	return &m, nil
}

func (s *Service) compute(ctx context.Context, filter Filter, trendStart time.Time) (*Metrics, error) {
	var (
		byType    map[communications.Type]int
		byStatus  map[communications.Status]int
		followUps FollowUpTotals
		trends    []TrendPoint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byType, err = s.repo.CountByType(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		byStatus, err = s.repo.CountByStatus(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		followUps, err = s.repo.FollowUpTotals(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		trends, err = s.repo.MonthlyTrends(gctx, trendStart, filter.ActorID, s.loc)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := Summarize(byType, byStatus, followUps)
	if trends != nil {
		m.MonthlyTrends = trends
	}
	return &m, nil
}

func bound(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.UTC().Format("20060102T150405")
}

func actorToken(actorID string) string {
	if actorID == "" {
		return "all"
	}
	return actorID
}
