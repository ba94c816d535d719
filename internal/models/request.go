package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RequestStatus enumerates the design request lifecycle states.
type RequestStatus string

const (
	StatusToDo     RequestStatus = "TO_DO"
	StatusProgress RequestStatus = "PROGRESS"
	StatusRevision RequestStatus = "REVISION"
	StatusReview   RequestStatus = "REVIEW"
	StatusDone     RequestStatus = "DONE"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusToDo, StatusProgress, StatusRevision, StatusReview, StatusDone:
		return true
	}
	return false
}

// handlerTransitions is the single authoritative table of status moves the
// assigned handler may perform. Requester-driven moves (REVIEW->DONE and
// REVIEW->REVISION) are deliberately absent: they go through the dedicated
// complete/revision operations instead.
var handlerTransitions = map[RequestStatus][]RequestStatus{
	StatusProgress: {StatusReview, StatusRevision},
	StatusReview:   {StatusRevision},
	StatusRevision: {StatusProgress, StatusReview},
}

// CanHandlerTransition reports whether the handler may move a request from
// one status to another.
func CanHandlerTransition(from, to RequestStatus) bool {
	for _, allowed := range handlerTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// FileAttachment is a named file reference on a request, unique by name.
type FileAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FileAttachments is stored as a jsonb column.
type FileAttachments []FileAttachment

// Value implements driver.Valuer for jsonb storage.
func (f FileAttachments) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner for jsonb storage.
func (f *FileAttachments) Scan(src interface{}) error {
	if src == nil {
		*f = FileAttachments{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan file attachments: unexpected type %T", src)
	}
	return json.Unmarshal(raw, f)
}

// Merge returns a copy of the list with the given attachment appended,
// replacing any existing entry sharing the same name (last write wins).
func (f FileAttachments) Merge(file FileAttachment) FileAttachments {
	merged := make(FileAttachments, 0, len(f)+1)
	for _, existing := range f {
		if existing.Name != file.Name {
			merged = append(merged, existing)
		}
	}
	return append(merged, file)
}

// Remove returns a copy of the list without the named attachment.
func (f FileAttachments) Remove(name string) FileAttachments {
	out := make(FileAttachments, 0, len(f))
	for _, existing := range f {
		if existing.Name != name {
			out = append(out, existing)
		}
	}
	return out
}

// Find returns the attachment with the given name, if present.
func (f FileAttachments) Find(name string) (FileAttachment, bool) {
	for _, existing := range f {
		if existing.Name == name {
			return existing, true
		}
	}
	return FileAttachment{}, false
}

// DesignRequest is the central helpdesk entity tracked through the lifecycle.
type DesignRequest struct {
	ID          string          `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Project     string          `db:"project" json:"project"`
	Department  string          `db:"department" json:"department"`
	Status      RequestStatus   `db:"status" json:"status"`
	RequesterID string          `db:"requester_id" json:"requester_id"`
	HandlerID   *string         `db:"handler_id" json:"handler_id,omitempty"`
	DueDate     time.Time       `db:"due_date" json:"due_date"`
	Files       FileAttachments `db:"files" json:"files"`
	Rating      *int            `db:"rating" json:"rating,omitempty"`
	Review      *string         `db:"review" json:"review,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// RequestFilter captures list criteria as an explicit value object instead of
// ad hoc query chaining.
type RequestFilter struct {
	Status      *RequestStatus
	RequesterID string
	HandlerID   string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// TrendPoint is one day of the request creation trend.
type TrendPoint struct {
	Date  time.Time `db:"day" json:"date"`
	Count int       `db:"total" json:"count"`
}
