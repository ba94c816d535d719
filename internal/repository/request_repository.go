package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arkadesain/design-desk-api/internal/models"
)

const requestColumns = `id, title, description, project, department, status, requester_id, handler_id, due_date, files, rating, review, created_at, updated_at, completed_at`

// RequestRepository provides database access for design requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new instance of RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new design request.
func (r *RequestRepository) Create(ctx context.Context, req *models.DesignRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Files == nil {
		req.Files = models.FileAttachments{}
	}
	const query = `INSERT INTO design_requests (id, title, description, project, department, status, requester_id, handler_id, due_date, files, rating, review, created_at, updated_at, completed_at)
VALUES (:id, :title, :description, :project, :department, :status, :requester_id, :handler_id, :due_date, :files, :rating, :review, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("insert design request: %w", err)
	}
	return nil
}

// GetByID fetches a single request. sql.ErrNoRows passes through untouched so
// callers can map it to a not-found error.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.DesignRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM design_requests WHERE id = $1 LIMIT 1`, requestColumns)
	var req models.DesignRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter with a total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.DesignRequest, int, error) {
	baseQuery := `FROM design_requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.RequesterID != "" {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)+1))
		args = append(args, filter.RequesterID)
	}
	if filter.HandlerID != "" {
		conditions = append(conditions, fmt.Sprintf("handler_id = $%d", len(args)+1))
		args = append(args, filter.HandlerID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, *filter.CreatedTo)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at": true,
		"due_date":   true,
		"updated_at": true,
		"title":      true,
		"status":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", requestColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var requests []models.DesignRequest
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list design requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count design requests: %w", err)
	}

	return requests, total, nil
}

// Claim atomically assigns an unclaimed request to the given handler and
// moves it to PROGRESS. The WHERE clause on handler_id IS NULL is the
// compare-and-set that makes concurrent claims exactly-once: the returned
// bool is false when another handler won the race.
func (r *RequestRepository) Claim(ctx context.Context, id, handlerID string) (bool, error) {
	const query = `UPDATE design_requests
SET handler_id = $2, status = $3, updated_at = $4
WHERE id = $1 AND handler_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, handlerID, models.StatusProgress, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim design request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus sets the status of a request.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	const query = `UPDATE design_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// AppendRevision appends a revision note to the description and moves the
// request to REVISION. The append happens in SQL so concurrent readers never
// observe a half-written description.
func (r *RequestRepository) AppendRevision(ctx context.Context, id, note string) error {
	const query = `UPDATE design_requests
SET description = description || $2, status = $3, updated_at = $4
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, note, models.StatusRevision, time.Now().UTC()); err != nil {
		return fmt.Errorf("append revision note: %w", err)
	}
	return nil
}

// Complete marks a reviewed request DONE with its rating and review,
// stamping completed_at. Conditioned on status = REVIEW so a duplicate
// submission cannot overwrite an accepted rating; false means the request
// was no longer in review.
func (r *RequestRepository) Complete(ctx context.Context, id string, rating int, review string, completedAt time.Time) (bool, error) {
	const query = `UPDATE design_requests
SET status = $2, rating = $3, review = $4, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusDone, rating, review, completedAt, models.StatusReview)
	if err != nil {
		return false, fmt.Errorf("complete design request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return affected == 1, nil
}

// MergeFile adds or replaces an attachment by name inside a row-locked
// transaction so concurrent uploads cannot lose each other's entries.
func (r *RequestRepository) MergeFile(ctx context.Context, id string, file models.FileAttachment) (models.FileAttachments, error) {
	return r.mutateFiles(ctx, id, func(files models.FileAttachments) models.FileAttachments {
		return files.Merge(file)
	})
}

// RemoveFile drops the named attachment using the same serialized merge.
func (r *RequestRepository) RemoveFile(ctx context.Context, id, name string) (models.FileAttachments, error) {
	return r.mutateFiles(ctx, id, func(files models.FileAttachments) models.FileAttachments {
		return files.Remove(name)
	})
}

func (r *RequestRepository) mutateFiles(ctx context.Context, id string, mutate func(models.FileAttachments) models.FileAttachments) (models.FileAttachments, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin files tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var files models.FileAttachments
	if err := tx.GetContext(ctx, &files, `SELECT files FROM design_requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}

	updated := mutate(files)
	if _, err := tx.ExecContext(ctx, `UPDATE design_requests SET files = $2, updated_at = $3 WHERE id = $1`, id, updated, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("update request files: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit files tx: %w", err)
	}
	return updated, nil
}
