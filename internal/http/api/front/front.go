// Package front wires the public action endpoint into the gin engine.
package front

import (
	"github.com/gin-gonic/gin"

	"github.com/chatforge-app/chatforge/internal/http/api/front/handlers"
)

// RegisterFrontRoutes registers the health probe and the single action
// endpoint the web client talks to.
func RegisterFrontRoutes(r *gin.Engine, h *handlers.Handler) {
	if r == nil || h == nil {
		return
	}

	r.GET("/healthz", h.Healthz)
	r.POST("/api", h.Dispatch)
}
