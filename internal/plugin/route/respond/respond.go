// Package respond maps domain results and errors onto the uniform HTTP
// envelope every route returns.
package respond

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/metanexus/metadata-service/internal/model"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// OK writes a 200 success envelope.
func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, model.OK(message, data))
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, model.OK(message, data))
}

// Error writes the failure envelope with the status the error class implies.
func Error(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var partial *registrystore.PartialReconciliationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, model.Fail(err.Error()))
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, model.Fail(err.Error()))
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, model.Fail(err.Error()))
	case errors.As(err, &partial):
		// The local write landed but a neighbor write did not. The client can
		// re-send the same state to converge.
		log.Error("Partial reconciliation", "error", err)
		c.JSON(http.StatusInternalServerError, model.Fail(err.Error()))
	default:
		log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, model.Fail("internal error"))
	}
}

// Actor identifies the requesting user. Token validation happens upstream;
// the proxy forwards the authenticated username.
func Actor(c *gin.Context) string {
	if user := c.GetHeader("X-User"); user != "" {
		return user
	}
	return "unknown"
}
