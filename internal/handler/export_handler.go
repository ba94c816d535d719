package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/middleware"
	"github.com/arkadesain/design-desk-api/internal/service"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/response"
)

// ExportHandler wires HTTP endpoints to the export service.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Render the request listing as a downloadable file
// @Description Renders xlsx, csv or pdf and returns a signed short-lived download URL
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param format query string false "xlsx (default), csv or pdf"
// @Param status query string false "Lifecycle status filter"
// @Param from query string false "Created from (YYYY-MM-DD)"
// @Param to query string false "Created to (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/requests [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ExportRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	res, err := h.service.Generate(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a rendered export
// @Description Validates the signed token and streams the file. No session required; the token is the credential.
// @Tags Exports
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter required"))
		return
	}

	file, name, err := h.service.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/octet-stream")
	http.ServeContent(c.Writer, c.Request, name, fileModTime(file), file)
}
