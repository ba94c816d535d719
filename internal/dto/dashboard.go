package dto

import "github.com/arkadesain/design-desk-api/internal/models"

// AdminSummaryResponse is the dashboard payload for admins. Completion
// counters are computed on completed_at, not created_at.
type AdminSummaryResponse struct {
	ToDo              int      `json:"to_do"`
	InProgress        int      `json:"in_progress"`
	AwaitingReview    int      `json:"awaiting_review"`
	CompletedToday    int      `json:"completed_today"`
	CompletedThisWeek int      `json:"completed_this_week"`
	CompletedMonth    int      `json:"completed_this_month"`
	AverageRating     *float64 `json:"average_rating"`
}

// UserSummaryResponse is the dashboard payload for requesters, scoped to
// their own requests.
type UserSummaryResponse struct {
	ToDo          int `json:"to_do"`
	InProgress    int `json:"in_progress"`
	NeedsRevision int `json:"needs_revision"`
	Completed     int `json:"completed"`
}

// TrendResponse wraps the zero-filled daily creation trend.
type TrendResponse struct {
	Days   int                 `json:"days"`
	Points []models.TrendPoint `json:"points"`
}
