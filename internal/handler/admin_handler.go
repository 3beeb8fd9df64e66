package handler

import (
	"net/http"

	"formflow/internal/middleware"
	"formflow/internal/model"
	"formflow/internal/service"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes maintenance operations restricted to administrators.
type AdminHandler struct {
	auth        service.AuthService
	submissions service.SubmissionService
	authn       *middleware.Authenticator
}

func NewAdminHandler(auth service.AuthService, submissions service.SubmissionService, authn *middleware.Authenticator) *AdminHandler {
	return &AdminHandler{auth: auth, submissions: submissions, authn: authn}
}

func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/admin", h.authn.RequireRole(model.RoleAdmin))
	{
		group.POST("/demo-users", h.SeedDemoUsers)
		group.POST("/submissions/dedupe", h.DedupeSubmissions)
	}
}

// SeedDemoUsers handles POST /api/admin/demo-users
// @Summary      Create the demo accounts
// @Description  Idempotent. Returns the usernames created by this call.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/admin/demo-users [post]
func (h *AdminHandler) SeedDemoUsers(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	created, err := h.auth.SeedDemoUsers(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"created": created}))
}

// DedupeSubmissions handles POST /api/admin/submissions/dedupe
// @Summary      Remove duplicate submissions
// @Description  Keeps the oldest submission of every (form, serial number, customer) group
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        form  query     string  false  "Restrict to one form slug"
// @Success      200   {object}  response.Response{data=service.DedupeReport}
// @Router       /api/admin/submissions/dedupe [post]
func (h *AdminHandler) DedupeSubmissions(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	report, err := h.submissions.Dedupe(c.Request.Context(), caller, c.Query("form"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}
