package dto

import (
	"time"

	"github.com/arkadesain/design-desk-api/internal/models"
)

// CreateRequestRequest is the payload for opening a design request.
type CreateRequestRequest struct {
	Title       string                  `json:"title" validate:"required"`
	Description string                  `json:"description" validate:"required"`
	Project     string                  `json:"project" validate:"required"`
	Department  string                  `json:"department" validate:"required"`
	DueDate     time.Time               `json:"due_date" validate:"required"`
	Files       []models.FileAttachment `json:"files,omitempty"`
}

// ChangeStatusRequest moves a claimed request between handler-owned states.
type ChangeStatusRequest struct {
	Status models.RequestStatus `json:"status" validate:"required"`
}

// RevisionRequest sends a reviewed request back with a note.
type RevisionRequest struct {
	Note string `json:"note" validate:"required"`
}

// CompleteRequestRequest accepts a reviewed request with a rating.
type CompleteRequestRequest struct {
	Rating int    `json:"rating" validate:"required"`
	Review string `json:"review,omitempty"`
}

// RequestResponse is the read-side projection of a design request with
// display names resolved for requester and handler.
type RequestResponse struct {
	models.DesignRequest
	RequesterName string `json:"requester_name,omitempty"`
	HandlerName   string `json:"handler_name,omitempty"`
}

// ListRequestsQuery carries the query string filters for request listings.
type ListRequestsQuery struct {
	Status    string `form:"status"`
	Search    string `form:"search"`
	From      string `form:"from"`
	To        string `form:"to"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
