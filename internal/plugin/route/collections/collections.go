// Package collections mounts the Collection REST endpoints.
package collections

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/route/respond"
	"github.com/metanexus/metadata-service/internal/service"
)

// MountRoutes mounts the Collection endpoints on the given router.
func MountRoutes(r *gin.Engine, s *service.Services) {
	g := r.Group("/v1/collections")

	g.POST("", func(c *gin.Context) { create(c, s) })
	g.GET("", func(c *gin.Context) { all(c, s) })
	g.POST("/lookup", func(c *gin.Context) { lookup(c, s) })
	g.GET("/:id", func(c *gin.Context) { getOne(c, s) })
	g.PUT("/:id", func(c *gin.Context) { update(c, s) })
	g.DELETE("/:id", func(c *gin.Context) { remove(c, s) })
	g.POST("/:id/archive", func(c *gin.Context) { setArchived(c, s) })
}

func create(c *gin.Context, s *service.Services) {
	var draft model.Collection
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	created, err := s.Collections.Create(c.Request.Context(), draft, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Created Collection", created)
}

func all(c *gin.Context, s *service.Services) {
	collections, err := s.Collections.All(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", collections)
}

func lookup(c *gin.Context, s *service.Services) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	collections, err := s.Collections.GetMany(c.Request.Context(), req.IDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", collections)
}

func getOne(c *gin.Context, s *service.Services) {
	collection, err := s.Collections.GetOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", collection)
}

func update(c *gin.Context, s *service.Services) {
	var desired model.Collection
	if err := c.ShouldBindJSON(&desired); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	desired.ID = c.Param("id")
	updated, err := s.Collections.Update(c.Request.Context(), desired, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Updated Collection", updated)
}

func remove(c *gin.Context, s *service.Services) {
	if err := s.Collections.Delete(c.Request.Context(), c.Param("id"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Deleted Collection", nil)
}

func setArchived(c *gin.Context, s *service.Services) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	message, err := s.Collections.SetArchived(c.Request.Context(), c.Param("id"), req.Archived, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, message, nil)
}
