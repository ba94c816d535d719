package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/storage"
)

const (
	revisionTimeLayout = "2006-01-02 15:04"
	minRating          = 1
	maxRating          = 10
)

type requestRepository interface {
	Create(ctx context.Context, req *models.DesignRequest) error
	GetByID(ctx context.Context, id string) (*models.DesignRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.DesignRequest, int, error)
	Claim(ctx context.Context, id, handlerID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	AppendRevision(ctx context.Context, id, note string) error
	Complete(ctx context.Context, id string, rating int, review string, completedAt time.Time) (bool, error)
	MergeFile(ctx context.Context, id string, file models.FileAttachment) (models.FileAttachments, error)
	RemoveFile(ctx context.Context, id, name string) (models.FileAttachments, error)
}

type userDirectory interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type blobStorage interface {
	Put(path string, data []byte) (string, error)
	Delete(path string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type dashboardInvalidator interface {
	InvalidateSummaries(ctx context.Context) error
}

type transitionObserver interface {
	ObserveTransition(from, to models.RequestStatus)
}

// RequestService coordinates the design request lifecycle: creation, atomic
// claiming, status moves, revision loops, completion and attachments.
type RequestService struct {
	repo        requestRepository
	users       userDirectory
	blobs       blobStorage
	audit       auditRecorder
	dashboards  dashboardInvalidator
	metrics     transitionObserver
	validator   *validator.Validate
	logger      *zap.Logger
	maxFileSize int64
}

// NewRequestService constructs the request service.
func NewRequestService(repo requestRepository, users userDirectory, blobs blobStorage, audit auditRecorder, dashboards dashboardInvalidator, metrics transitionObserver, validate *validator.Validate, logger *zap.Logger, maxFileSize int64) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFileSize <= 0 {
		maxFileSize = 20 * 1024 * 1024
	}
	return &RequestService{
		repo:        repo,
		users:       users,
		blobs:       blobs,
		audit:       audit,
		dashboards:  dashboards,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		maxFileSize: maxFileSize,
	}
}

// Create opens a new request in TO_DO on behalf of the actor. Initial
// attachments are deduplicated by name, last entry winning.
func (s *RequestService) Create(ctx context.Context, actor models.UserInfo, payload dto.CreateRequestRequest) (*dto.RequestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if payload.DueDate.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date must not be in the past")
	}

	var files models.FileAttachments
	for _, f := range payload.Files {
		files = files.Merge(f)
	}
	if files == nil {
		files = models.FileAttachments{}
	}

	req := &models.DesignRequest{
		Title:       payload.Title,
		Description: payload.Description,
		Project:     payload.Project,
		Department:  payload.Department,
		Status:      models.StatusToDo,
		RequesterID: actor.ID,
		DueDate:     payload.DueDate,
		Files:       files,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.recordAudit(ctx, actor, models.AuditActionRequestCreate, req.ID, map[string]interface{}{"title": req.Title, "status": req.Status})
	s.invalidateDashboards(ctx)

	return s.toResponse(ctx, req), nil
}

// Get returns one request. Non-admin actors only see their own.
func (s *RequestService) Get(ctx context.Context, actor models.UserInfo, id string) (*dto.RequestResponse, error) {
	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && req.RequesterID != actor.ID {
		return nil, appErrors.ErrNotFound
	}
	return s.toResponse(ctx, req), nil
}

// List returns requests matching the query. Non-admin actors are always
// scoped to their own requests.
func (s *RequestService) List(ctx context.Context, actor models.UserInfo, query dto.ListRequestsQuery) ([]dto.RequestResponse, *models.Pagination, error) {
	filter, err := s.buildFilter(actor, query)
	if err != nil {
		return nil, nil, err
	}
	return s.list(ctx, filter)
}

// History returns completed requests, newest completion first for admins and
// scoped to the actor's own requests otherwise.
func (s *RequestService) History(ctx context.Context, actor models.UserInfo, query dto.ListRequestsQuery) ([]dto.RequestResponse, *models.Pagination, error) {
	query.Status = string(models.StatusDone)
	filter, err := s.buildFilter(actor, query)
	if err != nil {
		return nil, nil, err
	}
	if filter.SortBy == "" {
		filter.SortBy = "updated_at"
		filter.SortOrder = "DESC"
	}
	return s.list(ctx, filter)
}

// Claim assigns an unclaimed request to the acting admin and moves it to
// PROGRESS. The repository compare-and-set guarantees at most one winner
// under concurrent claims; losers get ALREADY_CLAIMED.
func (s *RequestService) Claim(ctx context.Context, actor models.UserInfo, id string) (*dto.RequestResponse, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.HandlerID != nil {
		return nil, appErrors.ErrAlreadyClaimed
	}

	claimed, err := s.repo.Claim(ctx, id, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim request")
	}
	if !claimed {
		return nil, appErrors.ErrAlreadyClaimed
	}

	s.observeTransition(models.StatusToDo, models.StatusProgress)
	s.recordAudit(ctx, actor, models.AuditActionRequestClaim, id, map[string]interface{}{"handler_id": actor.ID})
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// ChangeStatus moves a claimed request between handler-owned states. Only the
// assigned handler may call it, and only along the allowed transitions.
func (s *RequestService) ChangeStatus(ctx context.Context, actor models.UserInfo, id string, payload dto.ChangeStatusRequest) (*dto.RequestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if !payload.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", payload.Status))
	}

	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin || req.HandlerID == nil || *req.HandlerID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if !models.CanHandlerTransition(req.Status, payload.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move request from %s to %s", req.Status, payload.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, payload.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	s.observeTransition(req.Status, payload.Status)
	s.recordAudit(ctx, actor, models.AuditActionStatusChange, id, map[string]interface{}{"from": req.Status, "to": payload.Status})
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// RequestRevision sends a reviewed request back to REVISION with the
// requester's note appended to the description.
func (s *RequestService) RequestRevision(ctx context.Context, actor models.UserInfo, id string, payload dto.RevisionRequest) (*dto.RequestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if req.Status != models.StatusReview {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request must be in review to ask for a revision")
	}

	note := fmt.Sprintf("\n\n[REVISION %s]: %s", time.Now().UTC().Format(revisionTimeLayout), payload.Note)
	if err := s.repo.AppendRevision(ctx, id, note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record revision")
	}

	s.observeTransition(models.StatusReview, models.StatusRevision)
	s.recordAudit(ctx, actor, models.AuditActionRevision, id, map[string]interface{}{"note": payload.Note})
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// Complete accepts a reviewed request with a rating and optional review text.
// The repository update is conditioned on REVIEW so a raced duplicate cannot
// overwrite an accepted rating.
func (s *RequestService) Complete(ctx context.Context, actor models.UserInfo, id string, payload dto.CompleteRequestRequest) (*dto.RequestResponse, error) {
	if payload.Rating < minRating || payload.Rating > maxRating {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}

	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if req.Status != models.StatusReview {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request must be in review to be completed")
	}

	done, err := s.repo.Complete(ctx, id, payload.Rating, payload.Review, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete request")
	}
	if !done {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "request is no longer in review")
	}

	s.observeTransition(models.StatusReview, models.StatusDone)
	s.recordAudit(ctx, actor, models.AuditActionComplete, id, map[string]interface{}{"rating": payload.Rating})
	s.invalidateDashboards(ctx)

	return s.Get(ctx, actor, id)
}

// AddFile stores the blob, then merges the attachment into the request's file
// list replacing any same-named entry. Only the assigned handler may mutate
// attachments after creation. The blob goes first so the list never references
// a file that was not written; a failed merge leaves an orphan blob which is
// logged and swept out of band.
func (s *RequestService) AddFile(ctx context.Context, actor models.UserInfo, id, name string, data []byte) (models.FileAttachments, error) {
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxFileSize))
	}

	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.HandlerID == nil || *req.HandlerID != actor.ID {
		return nil, appErrors.ErrForbidden
	}

	path := fmt.Sprintf("requests/%s/%s", id, name)
	url, err := s.blobs.Put(path, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	files, err := s.repo.MergeFile(ctx, id, models.FileAttachment{Name: name, URL: url})
	if err != nil {
		s.logger.Warn("attachment merge failed, blob orphaned",
			zap.String("request_id", id),
			zap.String("path", path),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach file")
	}

	s.recordAudit(ctx, actor, models.AuditActionFileAdd, id, map[string]interface{}{"name": name})
	return files, nil
}

// RemoveFile drops the named attachment from the request, then best-effort
// deletes the blob. Handler-only, like AddFile. A missing blob is treated as
// already cleaned up.
func (s *RequestService) RemoveFile(ctx context.Context, actor models.UserInfo, id, name string) (models.FileAttachments, error) {
	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.HandlerID == nil || *req.HandlerID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if _, ok := req.Files.Find(name); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}

	files, err := s.repo.RemoveFile(ctx, id, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove attachment")
	}

	path := fmt.Sprintf("requests/%s/%s", id, name)
	if err := s.blobs.Delete(path); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("blob delete failed after detach",
			zap.String("request_id", id),
			zap.String("path", path),
			zap.Error(err))
	}

	s.recordAudit(ctx, actor, models.AuditActionFileRemove, id, map[string]interface{}{"name": name})
	return files, nil
}

func (s *RequestService) fetch(ctx context.Context, id string) (*models.DesignRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return req, nil
}

func (s *RequestService) buildFilter(actor models.UserInfo, query dto.ListRequestsQuery) (models.RequestFilter, error) {
	filter := models.RequestFilter{
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.Status != "" {
		status := models.RequestStatus(query.Status)
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		filter.Status = &status
	}
	if query.From != "" {
		from, err := time.Parse("2006-01-02", query.From)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD")
		}
		filter.CreatedFrom = &from
	}
	if query.To != "" {
		to, err := time.Parse("2006-01-02", query.To)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD")
		}
		end := to.Add(24 * time.Hour)
		filter.CreatedTo = &end
	}
	if actor.Role != models.RoleAdmin {
		filter.RequesterID = actor.ID
	}
	return filter, nil
}

func (s *RequestService) list(ctx context.Context, filter models.RequestFilter) ([]dto.RequestResponse, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}

	names := s.resolveNames(ctx, requests)
	responses := make([]dto.RequestResponse, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, projectRequest(req, names))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return responses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *RequestService) toResponse(ctx context.Context, req *models.DesignRequest) *dto.RequestResponse {
	names := s.resolveNames(ctx, []models.DesignRequest{*req})
	resp := projectRequest(*req, names)
	return &resp
}

// resolveNames batches the display-name lookup for requesters and handlers.
// Lookup failures degrade to id-only responses rather than failing the read.
func (s *RequestService) resolveNames(ctx context.Context, requests []models.DesignRequest) map[string]string {
	seen := map[string]bool{}
	var ids []string
	for _, req := range requests {
		if !seen[req.RequesterID] {
			seen[req.RequesterID] = true
			ids = append(ids, req.RequesterID)
		}
		if req.HandlerID != nil && !seen[*req.HandlerID] {
			seen[*req.HandlerID] = true
			ids = append(ids, *req.HandlerID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("display name lookup failed", zap.Error(err))
		return nil
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}

func projectRequest(req models.DesignRequest, names map[string]string) dto.RequestResponse {
	resp := dto.RequestResponse{DesignRequest: req, RequesterName: names[req.RequesterID]}
	if req.HandlerID != nil {
		resp.HandlerName = names[*req.HandlerID]
	}
	return resp
}

func (s *RequestService) observeTransition(from, to models.RequestStatus) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(from, to)
	}
}

func (s *RequestService) invalidateDashboards(ctx context.Context) {
	if s.dashboards == nil {
		return
	}
	if err := s.dashboards.InvalidateSummaries(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *RequestService) recordAudit(ctx context.Context, actor models.UserInfo, action models.AuditAction, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	userID := actor.ID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "design_request",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", string(action)), zap.Error(err))
	}
}
