// Package httpapi exposes the admin actions and the collaborator write paths
// over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine. Everything under /api requires the admin
// bearer token; /healthz is open.
func NewRouter(h *Handler, token string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(AuthMiddleware(token))
	{
		api.POST("/users", h.CreateUser)
		api.PUT("/users/:id/settings", h.UpdateSettings)
		api.POST("/users/:id/sessions", h.AddSession)
		api.POST("/users/:id/recipients", h.AddRecipient)
		api.DELETE("/users/:id/recipients", h.RemoveRecipient)

		adm := api.Group("/admin")
		{
			adm.GET("/users", h.ListUsers)
			adm.POST("/users/:id/trigger-report", h.TriggerReport)
			adm.DELETE("/users/:id", h.DeleteUser)
			adm.POST("/recipients/:id/reset", h.ResetRecipient)
			adm.POST("/emails/:id/reset", h.ResetRecipient)
		}
	}
	return r
}
