package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/middleware"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/response"
)

type requestService interface {
	Create(ctx context.Context, actor models.UserInfo, payload dto.CreateRequestRequest) (*dto.RequestResponse, error)
	Get(ctx context.Context, actor models.UserInfo, id string) (*dto.RequestResponse, error)
	List(ctx context.Context, actor models.UserInfo, query dto.ListRequestsQuery) ([]dto.RequestResponse, *models.Pagination, error)
	History(ctx context.Context, actor models.UserInfo, query dto.ListRequestsQuery) ([]dto.RequestResponse, *models.Pagination, error)
	Claim(ctx context.Context, actor models.UserInfo, id string) (*dto.RequestResponse, error)
	ChangeStatus(ctx context.Context, actor models.UserInfo, id string, payload dto.ChangeStatusRequest) (*dto.RequestResponse, error)
	RequestRevision(ctx context.Context, actor models.UserInfo, id string, payload dto.RevisionRequest) (*dto.RequestResponse, error)
	Complete(ctx context.Context, actor models.UserInfo, id string, payload dto.CompleteRequestRequest) (*dto.RequestResponse, error)
	AddFile(ctx context.Context, actor models.UserInfo, id, name string, data []byte) (models.FileAttachments, error)
	RemoveFile(ctx context.Context, actor models.UserInfo, id, name string) (models.FileAttachments, error)
}

// RequestHandler wires HTTP endpoints to the request lifecycle service.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler creates a new handler.
func NewRequestHandler(svc requestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// Create godoc
// @Summary Open a design request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	res, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List design requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param status query string false "Lifecycle status filter"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	res, pagination, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, pagination)
}

// History godoc
// @Summary List completed requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/history [get]
func (h *RequestHandler) History(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	res, pagination, err := h.service.History(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, pagination)
}

// Get godoc
// @Summary Fetch one design request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Claim godoc
// @Summary Claim an unassigned request
// @Description Atomically assigns the request to the calling admin and moves it to PROGRESS
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/claim [post]
func (h *RequestHandler) Claim(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.service.Claim(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ChangeStatus godoc
// @Summary Move a claimed request between handler states
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.ChangeStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/status [put]
func (h *RequestHandler) ChangeStatus(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	res, err := h.service.ChangeStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Revision godoc
// @Summary Send a reviewed request back with a note
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.RevisionRequest true "Revision note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/revision [post]
func (h *RequestHandler) Revision(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid revision payload"))
		return
	}
	res, err := h.service.RequestRevision(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Complete godoc
// @Summary Accept a reviewed request with a rating
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.CompleteRequestRequest true "Rating payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CompleteRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}
	res, err := h.service.Complete(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// AddFile godoc
// @Summary Attach a file to a request
// @Description Uploads a file; an attachment with the same name is replaced
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param file formData file true "File to attach"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests/{id}/files [post]
func (h *RequestHandler) AddFile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart file field required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer upload"))
		return
	}

	files, err := h.service.AddFile(c.Request.Context(), actor, c.Param("id"), fileHeader.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"files": files}, nil)
}

// RemoveFile godoc
// @Summary Detach a file from a request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param name path string true "Attachment name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/files/{name} [delete]
func (h *RequestHandler) RemoveFile(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	files, err := h.service.RemoveFile(c.Request.Context(), actor, c.Param("id"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"files": files}, nil)
}
