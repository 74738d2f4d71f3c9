package api

import (
	"github.com/cloudwego/hertz/pkg/app/server"
)

// RegisterRoutes registers API routes.
func RegisterRoutes(h *server.Hertz, handler *Handler) {
	api := h.Group("/api/v1")

	api.POST("/match", handler.Match)
	api.GET("/health", handler.Health)
	api.GET("/status", handler.Status)
}
