package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arkadesain/design-desk-api/internal/dto"
	"github.com/arkadesain/design-desk-api/internal/middleware"
	"github.com/arkadesain/design-desk-api/internal/models"
	appErrors "github.com/arkadesain/design-desk-api/pkg/errors"
	"github.com/arkadesain/design-desk-api/pkg/response"
)

type dashboardService interface {
	AdminSummary(ctx context.Context) (*dto.AdminSummaryResponse, error)
	UserSummary(ctx context.Context, userID string) (*dto.UserSummaryResponse, error)
	Trend(ctx context.Context, days int) (*dto.TrendResponse, error)
}

// DashboardHandler wires HTTP endpoints to the dashboard service.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc dashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Role-aware workload summary
// @Description Admins get global counters and completion windows; requesters get counters over their own requests
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if actor.Role == models.RoleAdmin {
		summary, err := h.service.AdminSummary(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, summary, nil)
		return
	}

	summary, err := h.service.UserSummary(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Trend godoc
// @Summary Daily request creation trend
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window length in days (default 30, max 90)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/trend [get]
func (h *DashboardHandler) Trend(c *gin.Context) {
	if _, ok := middleware.CurrentUser(c); !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be an integer"))
			return
		}
		days = parsed
	}

	trend, err := h.service.Trend(c.Request.Context(), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trend, nil)
}
