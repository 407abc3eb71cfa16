// Package projects mounts the Project REST endpoints.
package projects

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/route/respond"
	"github.com/metanexus/metadata-service/internal/service"
)

// MountRoutes mounts the Project endpoints on the given router.
func MountRoutes(r *gin.Engine, s *service.Services) {
	g := r.Group("/v1/projects")

	g.POST("", func(c *gin.Context) { create(c, s) })
	g.GET("", func(c *gin.Context) { all(c, s) })
	g.POST("/lookup", func(c *gin.Context) { lookup(c, s) })
	g.GET("/:id", func(c *gin.Context) { getOne(c, s) })
	g.PUT("/:id", func(c *gin.Context) { update(c, s) })
	g.DELETE("/:id", func(c *gin.Context) { remove(c, s) })
	g.POST("/:id/archive", func(c *gin.Context) { setArchived(c, s) })
	g.POST("/:id/collaborators/:collaborator", func(c *gin.Context) { addCollaborator(c, s) })
	g.DELETE("/:id/collaborators/:collaborator", func(c *gin.Context) { removeCollaborator(c, s) })
}

func create(c *gin.Context, s *service.Services) {
	var draft model.Project
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	created, err := s.Projects.Create(c.Request.Context(), draft, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Created Project", created)
}

func all(c *gin.Context, s *service.Services) {
	projects, err := s.Projects.All(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", projects)
}

func lookup(c *gin.Context, s *service.Services) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	projects, err := s.Projects.GetMany(c.Request.Context(), req.IDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", projects)
}

func getOne(c *gin.Context, s *service.Services) {
	project, err := s.Projects.GetOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", project)
}

func update(c *gin.Context, s *service.Services) {
	var desired model.Project
	if err := c.ShouldBindJSON(&desired); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	desired.ID = c.Param("id")
	updated, err := s.Projects.Update(c.Request.Context(), desired, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Updated Project", updated)
}

func remove(c *gin.Context, s *service.Services) {
	if err := s.Projects.Delete(c.Request.Context(), c.Param("id"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Deleted Project", nil)
}

func setArchived(c *gin.Context, s *service.Services) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	message, err := s.Projects.SetArchived(c.Request.Context(), c.Param("id"), req.Archived, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, message, nil)
}

func addCollaborator(c *gin.Context, s *service.Services) {
	if err := s.Projects.AddCollaborator(c.Request.Context(), c.Param("id"), c.Param("collaborator"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Added collaborator", nil)
}

func removeCollaborator(c *gin.Context, s *service.Services) {
	if err := s.Projects.RemoveCollaborator(c.Request.Context(), c.Param("id"), c.Param("collaborator"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Removed collaborator", nil)
}
