package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkadesain/design-desk-api/internal/handler"
	"github.com/arkadesain/design-desk-api/internal/middleware"
	"github.com/arkadesain/design-desk-api/internal/models"
	"github.com/arkadesain/design-desk-api/internal/service"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Requests  *handler.RequestHandler
	Dashboard *handler.DashboardHandler
	Exports   *handler.ExportHandler
	Users     *handler.UserHandler
	Metrics   *handler.MetricsHandler
}

// Register mounts every API route under the given prefix. Health, readiness
// and metrics stay at the root, outside the versioned prefix.
func Register(r *gin.Engine, prefix string, authService *service.AuthService, h Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Metrics)

	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authService), h.Auth.Logout)
		auth.GET("/me", middleware.JWT(authService), h.Auth.Me)
		auth.PUT("/password", middleware.JWT(authService), h.Auth.ChangePassword)
	}

	requests := api.Group("/requests", middleware.JWT(authService))
	{
		requests.POST("", h.Requests.Create)
		requests.GET("", h.Requests.List)
		requests.GET("/history", h.Requests.History)
		requests.GET("/:id", h.Requests.Get)
		requests.POST("/:id/claim", middleware.RequireRoles(models.RoleAdmin), h.Requests.Claim)
		requests.PUT("/:id/status", middleware.RequireRoles(models.RoleAdmin), h.Requests.ChangeStatus)
		requests.POST("/:id/revision", h.Requests.Revision)
		requests.POST("/:id/complete", h.Requests.Complete)
		requests.POST("/:id/files", h.Requests.AddFile)
		requests.DELETE("/:id/files/:name", h.Requests.RemoveFile)
	}

	dashboard := api.Group("/dashboard", middleware.JWT(authService))
	{
		dashboard.GET("/summary", h.Dashboard.Summary)
		dashboard.GET("/trend", h.Dashboard.Trend)
	}

	exports := api.Group("/exports")
	{
		exports.POST("/requests", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), h.Exports.Generate)
		// The signed token is the credential; no session required.
		exports.GET("/download", h.Exports.Download)
	}

	users := api.Group("/users", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", h.Users.List)
		users.GET("/:id", h.Users.Get)
		users.POST("", h.Users.Create)
	}
}
