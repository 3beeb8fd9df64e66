package handler

import (
	"net/http"

	"formflow/internal/apperr"
	"formflow/internal/middleware"
	"formflow/internal/service"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes the error envelope and records err for the request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := apperr.HTTPStatus(err)
	c.JSON(status, response.Error(status, apperr.PublicMessage(err)))
}

func callerOrAbort(c *gin.Context) (service.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return service.Caller{}, false
	}
	return caller, true
}

func idParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}
