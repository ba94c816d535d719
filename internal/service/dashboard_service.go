package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 90
)

type reportRepository interface {
	CountByStatus(ctx context.Context, status models.RequestStatus, requesterID string) (int, error)
	CountCompletedBetween(ctx context.Context, start, end time.Time) (int, error)
	AverageRating(ctx context.Context) (*float64, error)
	DailyCreationCounts(ctx context.Context, since time.Time) ([]models.TrendPoint, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type backlogObserver interface {
	SetOpenRequests(status models.RequestStatus, count int)
}

// DashboardService aggregates lifecycle counters per role. Admin summaries
// compute completion windows on completed_at, never created_at, so a request
// created weeks ago but finished today counts as today's completion.
type DashboardService struct {
	reports  reportRepository
	cache    dashboardCache
	metrics  backlogObserver
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(reports reportRepository, cache dashboardCache, metrics backlogObserver, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		reports:  reports,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AdminSummary returns global workload counters, completion counts for the
// current day, ISO week and calendar month, and the overall average rating.
func (s *DashboardService) AdminSummary(ctx context.Context) (*dto.AdminSummaryResponse, error) {
	var cached dto.AdminSummaryResponse
	if s.cacheGet(ctx, adminSummaryCacheKey, &cached) {
		return &cached, nil
	}

	summary := &dto.AdminSummaryResponse{}
	var err error
	if summary.ToDo, err = s.reports.CountByStatus(ctx, models.StatusToDo, ""); err != nil {
		return nil, s.wrap(err)
	}
	if summary.InProgress, err = s.reports.CountByStatus(ctx, models.StatusProgress, ""); err != nil {
		return nil, s.wrap(err)
	}
	if summary.AwaitingReview, err = s.reports.CountByStatus(ctx, models.StatusReview, ""); err != nil {
		return nil, s.wrap(err)
	}
	if s.metrics != nil {
		s.metrics.SetOpenRequests(models.StatusToDo, summary.ToDo)
		s.metrics.SetOpenRequests(models.StatusProgress, summary.InProgress)
		s.metrics.SetOpenRequests(models.StatusReview, summary.AwaitingReview)
	}

	now := s.now()
	dayStart := startOfDay(now)
	if summary.CompletedToday, err = s.reports.CountCompletedBetween(ctx, dayStart, dayStart.Add(24*time.Hour)); err != nil {
		return nil, s.wrap(err)
	}
	weekStart := startOfWeek(now)
	if summary.CompletedThisWeek, err = s.reports.CountCompletedBetween(ctx, weekStart, weekStart.AddDate(0, 0, 7)); err != nil {
		return nil, s.wrap(err)
	}
	monthStart := startOfMonth(now)
	if summary.CompletedMonth, err = s.reports.CountCompletedBetween(ctx, monthStart, monthStart.AddDate(0, 1, 0)); err != nil {
		return nil, s.wrap(err)
	}
	if summary.AverageRating, err = s.reports.AverageRating(ctx); err != nil {
		return nil, s.wrap(err)
	}

	s.cacheSet(ctx, adminSummaryCacheKey, summary)
	return summary, nil
}

// UserSummary returns the actor's own request counters.
func (s *DashboardService) UserSummary(ctx context.Context, userID string) (*dto.UserSummaryResponse, error) {
	key := UserSummaryKey(userID)
	var cached dto.UserSummaryResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	summary := &dto.UserSummaryResponse{}
	var err error
	if summary.ToDo, err = s.reports.CountByStatus(ctx, models.StatusToDo, userID); err != nil {
		return nil, s.wrap(err)
	}
	if summary.InProgress, err = s.reports.CountByStatus(ctx, models.StatusProgress, userID); err != nil {
		return nil, s.wrap(err)
	}
	if summary.NeedsRevision, err = s.reports.CountByStatus(ctx, models.StatusRevision, userID); err != nil {
		return nil, s.wrap(err)
	}
	if summary.Completed, err = s.reports.CountByStatus(ctx, models.StatusDone, userID); err != nil {
		return nil, s.wrap(err)
	}

	s.cacheSet(ctx, key, summary)
	return summary, nil
}

// Trend returns per-day request creation counts for the trailing window,
// zero-filled so every day appears exactly once. Days outside 1..90 clamp to
// the default and maximum respectively.
func (s *DashboardService) Trend(ctx context.Context, days int) (*dto.TrendResponse, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}

	key := TrendKey(days)
	var cached dto.TrendResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	end := startOfDay(s.now())
	since := end.AddDate(0, 0, -(days - 1))
	raw, err := s.reports.DailyCreationCounts(ctx, since)
	if err != nil {
		return nil, s.wrap(err)
	}

	counts := make(map[time.Time]int, len(raw))
	for _, p := range raw {
		counts[startOfDay(p.Date.UTC())] = p.Count
	}

	points := make([]models.TrendPoint, 0, days)
	for d := 0; d < days; d++ {
		day := since.AddDate(0, 0, d)
		points = append(points, models.TrendPoint{Date: day, Count: counts[day]})
	}

	resp := &dto.TrendResponse{Days: days, Points: points}
	s.cacheSet(ctx, key, resp)
	return resp, nil
}

func (s *DashboardService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *DashboardService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *DashboardService) wrap(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns the preceding Monday at midnight UTC.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
