package handler

import (
	"net/http"

	"formflow/internal/middleware"
	"formflow/internal/model"
	"formflow/internal/service"
	"formflow/pkg/pagination"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	authn        *middleware.Authenticator
}

func NewAuditHandler(auditService service.AuditService, authn *middleware.Authenticator) *AuditHandler {
	return &AuditHandler{auditService: auditService, authn: authn}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.authn.RequireRole(model.RoleAdmin, model.RoleCEO))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs handles GET /api/audit-logs
// @Summary      Get audit logs
// @Description  Paginated history of mutations, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Param        action     query  string  false  "Action, e.g. SIGN_SUBMISSION"
// @Param        entity_id  query  string  false  "Entity ID"
// @Param        user_id    query  string  false  "Acting user ID"
// @Success      200    {object}  response.Response{data=object}
// @Failure      400    {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	var q service.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query: "+err.Error()))
		return
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Body("logs", logs, total)))
}
