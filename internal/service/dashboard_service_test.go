package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
)

type stubReportRepo struct {
	statusCounts    map[models.RequestStatus]int
	scopedCounts    map[string]map[models.RequestStatus]int
	completed       map[time.Time]int
	avgRating       *float64
	trendPoints     []models.TrendPoint
	completedCalls  []time.Time
	dailyTrendSince time.Time
}

func (r *stubReportRepo) CountByStatus(_ context.Context, status models.RequestStatus, requesterID string) (int, error) {
	if requesterID != "" {
		return r.scopedCounts[requesterID][status], nil
	}
	return r.statusCounts[status], nil
}

func (r *stubReportRepo) CountCompletedBetween(_ context.Context, start, _ time.Time) (int, error) {
	r.completedCalls = append(r.completedCalls, start)
	return r.completed[start], nil
}

func (r *stubReportRepo) AverageRating(_ context.Context) (*float64, error) {
	return r.avgRating, nil
}

func (r *stubReportRepo) DailyCreationCounts(_ context.Context, since time.Time) ([]models.TrendPoint, error) {
	r.dailyTrendSince = since
	return r.trendPoints, nil
}

// memoryCache round-trips values through JSON the same way the Redis-backed
// repository does.
type memoryCache struct {
	values map[string][]byte
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	c.sets++
	return nil
}

func fixedNow() time.Time {
	// Monday 2026-08-31 14:30 UTC.
	return time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
}

func newDashboardService(reports *stubReportRepo) *DashboardService {
	svc := NewDashboardService(reports, nil, nil, time.Minute, nil)
	svc.now = fixedNow
	return svc
}

func TestAdminSummaryCounters(t *testing.T) {
	avg := 8.25
	reports := &stubReportRepo{
		statusCounts: map[models.RequestStatus]int{
			models.StatusToDo:     3,
			models.StatusProgress: 2,
			models.StatusReview:   1,
		},
		completed: map[time.Time]int{
			time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC): 1, // today, also week start
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC):  9, // month start
		},
		avgRating: &avg,
	}
	svc := newDashboardService(reports)

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ToDo)
	assert.Equal(t, 2, summary.InProgress)
	assert.Equal(t, 1, summary.AwaitingReview)
	assert.Equal(t, 1, summary.CompletedToday)
	assert.Equal(t, 9, summary.CompletedMonth)
	require.NotNil(t, summary.AverageRating)
	assert.InDelta(t, 8.25, *summary.AverageRating, 0.001)

	// Day, week and month windows all anchor at midnight UTC.
	require.Len(t, reports.completedCalls, 3)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), reports.completedCalls[0])
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), reports.completedCalls[1]) // Monday
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), reports.completedCalls[2])
}

func TestAdminSummaryNoRatingsYieldsNil(t *testing.T) {
	reports := &stubReportRepo{
		statusCounts: map[models.RequestStatus]int{},
		completed:    map[time.Time]int{},
	}
	svc := newDashboardService(reports)

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary.AverageRating)
}

func TestWeekStartsOnMonday(t *testing.T) {
	reports := &stubReportRepo{statusCounts: map[models.RequestStatus]int{}, completed: map[time.Time]int{}}
	svc := newDashboardService(reports)
	// Sunday 2026-09-06 belongs to the week of Monday 2026-08-31.
	svc.now = func() time.Time { return time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC) }

	_, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, reports.completedCalls, 3)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), reports.completedCalls[1])
}

func TestUserSummaryScopedToRequester(t *testing.T) {
	reports := &stubReportRepo{
		scopedCounts: map[string]map[models.RequestStatus]int{
			"u1": {
				models.StatusToDo:     1,
				models.StatusProgress: 2,
				models.StatusRevision: 3,
				models.StatusDone:     4,
			},
		},
	}
	svc := newDashboardService(reports)

	summary, err := svc.UserSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ToDo)
	assert.Equal(t, 2, summary.InProgress)
	assert.Equal(t, 3, summary.NeedsRevision)
	assert.Equal(t, 4, summary.Completed)
}

func TestTrendZeroFillsMissingDays(t *testing.T) {
	reports := &stubReportRepo{
		trendPoints: []models.TrendPoint{
			{Date: time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), Count: 2},
			{Date: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), Count: 4},
		},
	}
	svc := newDashboardService(reports)

	trend, err := svc.Trend(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, trend.Days)
	require.Len(t, trend.Points, 7)

	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), trend.Points[0].Date)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), trend.Points[6].Date)

	total := 0
	for _, p := range trend.Points {
		total += p.Count
	}
	assert.Equal(t, 6, total)
	assert.Equal(t, 2, trend.Points[1].Count)
	assert.Equal(t, 4, trend.Points[6].Count)
	assert.Equal(t, 0, trend.Points[2].Count)
}

func TestAdminSummaryServedFromCache(t *testing.T) {
	reports := &stubReportRepo{
		statusCounts: map[models.RequestStatus]int{models.StatusToDo: 5},
		completed:    map[time.Time]int{},
	}
	cache := newMemoryCache()
	svc := NewDashboardService(reports, cache, nil, time.Minute, nil)
	svc.now = fixedNow

	first, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, first.ToDo)
	assert.Equal(t, 1, cache.sets)

	reports.statusCounts[models.StatusToDo] = 99
	second, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, second.ToDo)
	assert.Equal(t, 1, cache.sets)
}

func TestTrendClampsWindow(t *testing.T) {
	reports := &stubReportRepo{}
	svc := newDashboardService(reports)

	trend, err := svc.Trend(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTrendDays, trend.Days)
	assert.Len(t, trend.Points, defaultTrendDays)

	trend, err = svc.Trend(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, maxTrendDays, trend.Days)
	assert.Len(t, trend.Points, maxTrendDays)
}
