package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arkadesain/design-desk-api/internal/models"
)

// ReportRepository computes dashboard aggregates straight from the
// design_requests table. No aggregate state is persisted.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CountByStatus counts requests in the given status, optionally restricted to
// a single requester (non-admin views pass their own id, admins pass "").
func (r *ReportRepository) CountByStatus(ctx context.Context, status models.RequestStatus, requesterID string) (int, error) {
	query := `SELECT COUNT(*) FROM design_requests WHERE status = $1`
	args := []interface{}{status}
	if requesterID != "" {
		query += ` AND requester_id = $2`
		args = append(args, requesterID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count requests by status: %w", err)
	}
	return count, nil
}

// CountCompletedBetween counts DONE requests whose completed_at falls in
// [start, end).
func (r *ReportRepository) CountCompletedBetween(ctx context.Context, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM design_requests
WHERE status = $1 AND completed_at >= $2 AND completed_at < $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.StatusDone, start, end); err != nil {
		return 0, fmt.Errorf("count completed requests: %w", err)
	}
	return count, nil
}

// AverageRating returns the mean rating across rated DONE requests, or nil
// when none exist.
func (r *ReportRepository) AverageRating(ctx context.Context) (*float64, error) {
	const query = `SELECT AVG(rating) FROM design_requests WHERE status = $1 AND rating IS NOT NULL`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, models.StatusDone); err != nil {
		return nil, fmt.Errorf("average rating: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// DailyCreationCounts returns per-day creation counts from the given instant
// onward. Days with no creations are absent; the service layer zero-fills.
func (r *ReportRepository) DailyCreationCounts(ctx context.Context, since time.Time) ([]models.TrendPoint, error) {
	const query = `SELECT DATE_TRUNC('day', created_at) AS day, COUNT(*) AS total
FROM design_requests
WHERE created_at >= $1
GROUP BY day
ORDER BY day ASC`
	var points []models.TrendPoint
	if err := r.db.SelectContext(ctx, &points, query, since); err != nil {
		return nil, fmt.Errorf("daily creation counts: %w", err)
	}
	return points, nil
}
