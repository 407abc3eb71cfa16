// Package activity mounts the read-only audit trail endpoints.
package activity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/route/respond"
	"github.com/metanexus/metadata-service/internal/service"
)

// MountRoutes mounts the activity endpoints on the given router. The trail is
// append-only; records are written by lifecycle operations, never over HTTP.
func MountRoutes(r *gin.Engine, s *service.Services) {
	g := r.Group("/v1/activity")

	g.GET("", func(c *gin.Context) { all(c, s) })
	g.POST("/lookup", func(c *gin.Context) { lookup(c, s) })
}

func all(c *gin.Context, s *service.Services) {
	records, err := s.Activity.All(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", records)
}

func lookup(c *gin.Context, s *service.Services) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	records, err := s.Activity.GetMany(c.Request.Context(), req.IDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", records)
}
