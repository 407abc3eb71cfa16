// Package entities mounts the Entity REST endpoints.
package entities

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/metanexus/metadata-service/internal/mapper"
	"github.com/metanexus/metadata-service/internal/model"
	"github.com/metanexus/metadata-service/internal/plugin/route/respond"
	"github.com/metanexus/metadata-service/internal/service"
)

// MountRoutes mounts the Entity endpoints on the given router.
func MountRoutes(r *gin.Engine, s *service.Services, exporter *mapper.Exporter) {
	g := r.Group("/v1/entities")

	g.POST("", func(c *gin.Context) { create(c, s) })
	g.GET("", func(c *gin.Context) { all(c, s) })
	g.POST("/lookup", func(c *gin.Context) { lookup(c, s) })
	g.GET("/byname/:name", func(c *gin.Context) { byName(c, s) })
	g.GET("/:id", func(c *gin.Context) { getOne(c, s) })
	g.PUT("/:id", func(c *gin.Context) { update(c, s) })
	g.DELETE("/:id", func(c *gin.Context) { remove(c, s) })
	g.POST("/:id/archive", func(c *gin.Context) { setArchived(c, s) })
	g.PUT("/:id/description", func(c *gin.Context) { setDescription(c, s) })

	g.POST("/:id/projects/:projectId", func(c *gin.Context) { addProject(c, s) })
	g.DELETE("/:id/projects/:projectId", func(c *gin.Context) { removeProject(c, s) })
	g.POST("/:id/collections/:collectionId", func(c *gin.Context) { addCollection(c, s) })
	g.DELETE("/:id/collections/:collectionId", func(c *gin.Context) { removeCollection(c, s) })

	g.POST("/:id/attachments", func(c *gin.Context) { addAttachment(c, s) })
	g.DELETE("/:id/attachments/:attachmentId", func(c *gin.Context) { removeAttachment(c, s) })
	g.POST("/:id/templates/:templateId", func(c *gin.Context) { attachTemplate(c, s) })

	g.POST("/:id/lock", func(c *gin.Context) { acquireLock(c, s) })
	g.DELETE("/:id/lock", func(c *gin.Context) { releaseLock(c, s) })
	g.GET("/:id/lock", func(c *gin.Context) { lockHolder(c, s) })

	g.POST("/:id/export", func(c *gin.Context) { export(c, exporter) })
	g.POST("/export", func(c *gin.Context) { exportMany(c, exporter) })
	g.POST("/import", func(c *gin.Context) { importFile(c, s) })
	g.POST("/restore", func(c *gin.Context) { restoreBackup(c, s) })
}

func create(c *gin.Context, s *service.Services) {
	var draft model.Entity
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	created, err := s.Entities.Create(c.Request.Context(), draft, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Created(c, "Created Entity", created)
}

func all(c *gin.Context, s *service.Services) {
	entities, err := s.Entities.All(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", entities)
}

func lookup(c *gin.Context, s *service.Services) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	entities, err := s.Entities.GetMany(c.Request.Context(), req.IDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", entities)
}

func byName(c *gin.Context, s *service.Services) {
	entity, err := s.Entities.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", entity)
}

func getOne(c *gin.Context, s *service.Services) {
	entity, err := s.Entities.GetOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "", entity)
}

func update(c *gin.Context, s *service.Services) {
	var desired model.Entity
	if err := c.ShouldBindJSON(&desired); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	desired.ID = c.Param("id")
	message := c.Query("message")
	updated, err := s.Entities.Update(c.Request.Context(), desired, respond.Actor(c), message)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Updated Entity", updated)
}

func remove(c *gin.Context, s *service.Services) {
	if err := s.Entities.Delete(c.Request.Context(), c.Param("id"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Deleted Entity", nil)
}

func setArchived(c *gin.Context, s *service.Services) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	message, err := s.Entities.SetArchived(c.Request.Context(), c.Param("id"), req.Archived, respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, message, nil)
}

func setDescription(c *gin.Context, s *service.Services) {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	if err := s.Entities.SetDescription(c.Request.Context(), c.Param("id"), req.Description, respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Updated Entity", nil)
}

func addProject(c *gin.Context, s *service.Services) {
	if err := s.Entities.AddProject(c.Request.Context(), c.Param("id"), c.Param("projectId"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Added Entity to Project", nil)
}

func removeProject(c *gin.Context, s *service.Services) {
	if err := s.Entities.RemoveProject(c.Request.Context(), c.Param("id"), c.Param("projectId"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Removed Entity from Project", nil)
}

func addCollection(c *gin.Context, s *service.Services) {
	if err := s.Entities.AddCollection(c.Request.Context(), c.Param("id"), c.Param("collectionId"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Added Entity to Collection", nil)
}

func removeCollection(c *gin.Context, s *service.Services) {
	if err := s.Entities.RemoveCollection(c.Request.Context(), c.Param("id"), c.Param("collectionId"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Removed Entity from Collection", nil)
}

func addAttachment(c *gin.Context, s *service.Services) {
	var attachment model.Ref
	if err := c.ShouldBindJSON(&attachment); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	if err := s.Entities.AddAttachment(c.Request.Context(), c.Param("id"), attachment, respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Added attachment", nil)
}

func removeAttachment(c *gin.Context, s *service.Services) {
	if err := s.Entities.RemoveAttachment(c.Request.Context(), c.Param("id"), c.Param("attachmentId"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Removed attachment", nil)
}

func attachTemplate(c *gin.Context, s *service.Services) {
	attached, err := s.Entities.AttachTemplate(c.Request.Context(), c.Param("id"), c.Param("templateId"), respond.Actor(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Attached template", attached)
}

func acquireLock(c *gin.Context, s *service.Services) {
	if err := s.Locks.Acquire(c.Param("id"), respond.Actor(c)); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, "Lock acquired", nil)
}

func releaseLock(c *gin.Context, s *service.Services) {
	s.Locks.Release(c.Param("id"), respond.Actor(c))
	respond.OK(c, "Lock released", nil)
}

func lockHolder(c *gin.Context, s *service.Services) {
	respond.OK(c, "", gin.H{"holder": s.Locks.Holder(c.Param("id"))})
}

func export(c *gin.Context, exporter *mapper.Exporter) {
	var spec mapper.ExportSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	rc, filename, err := exporter.Export(c.Request.Context(), c.Param("id"), spec)
	if err != nil {
		respond.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, -1, contentType(spec.Format), rc, nil)
}

func exportMany(c *gin.Context, exporter *mapper.Exporter) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
		return
	}
	rc, filename, err := exporter.ExportMany(c.Request.Context(), req.IDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}

func contentType(format mapper.Format) string {
	switch format {
	case mapper.FormatCSV:
		return "text/csv"
	case mapper.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// importFile accepts a spreadsheet plus a column mapping and creates one
// Entity per mapped row. Nothing is created when the file has no usable rows.
func importFile(c *gin.Context, s *service.Services) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Fail("file is required"))
		return
	}
	defer file.Close()

	var mapping mapper.ColumnMapping
	if raw := c.PostForm("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			c.JSON(http.StatusBadRequest, model.Fail("invalid mapping"))
			return
		}
	}

	var rows []map[string]string
	if isXLSX(header.Filename) {
		rows, err = mapper.ReadXLSXRows(file)
	} else {
		rows, err = mapper.ReadCSVRows(file)
	}
	if err != nil {
		respond.Error(c, err)
		return
	}

	drafts, err := mapper.MapRows(rows, mapping)
	if err != nil {
		respond.Error(c, err)
		return
	}

	actor := respond.Actor(c)
	created := make([]model.Entity, 0, len(drafts))
	for _, draft := range drafts {
		entity, err := s.Entities.Create(c.Request.Context(), draft, actor)
		if err != nil {
			respond.Error(c, err)
			return
		}
		created = append(created, entity)
	}
	respond.Created(c, "Imported Entities", created)
}

func isXLSX(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

func restoreBackup(c *gin.Context, s *service.Services) {
	entities, err := mapper.ParseBackup(c.Request.Body)
	if err != nil {
		respond.Error(c, err)
		return
	}

	actor := respond.Actor(c)
	restored := make([]model.Entity, 0, len(entities))
	for _, entity := range entities {
		e, err := s.Entities.Restore(c.Request.Context(), entity, actor)
		if err != nil {
			respond.Error(c, err)
			return
		}
		restored = append(restored, e)
	}
	respond.Created(c, "Restored Entities", restored)
}
