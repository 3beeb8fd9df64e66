package handler

import (
	"net/http"

	"formflow/internal/apperr"
	"formflow/internal/middleware"
	"formflow/internal/service"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FormHandler struct {
	forms       service.FormService
	submissions service.SubmissionService
	analytics   service.AnalyticsService
	authn       *middleware.Authenticator
	logger      *zap.Logger
}

func NewFormHandler(forms service.FormService, submissions service.SubmissionService, analytics service.AnalyticsService, authn *middleware.Authenticator, logger *zap.Logger) *FormHandler {
	return &FormHandler{forms: forms, submissions: submissions, analytics: analytics, authn: authn, logger: logger.Named("form_handler")}
}

func (h *FormHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api", h.authn.RequireAuth())
	{
		api.GET("/forms", h.ListForms)
		api.GET("/departments", h.ListDepartments)
		api.GET("/forms/:slug/submissions", h.ListSubmissions)
		api.POST("/forms/:slug/submissions", h.CreateSubmission)
		api.GET("/forms/:slug/analytics", h.Analytics)
	}
}

// ListForms handles GET /api/forms
// @Summary      List forms
// @Description  Administrators and CEOs see every form; other users see the forms they were granted
// @Tags         forms
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.FormResponse}
// @Router       /api/forms [get]
func (h *FormHandler) ListForms(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	forms, err := h.forms.ListForms(c.Request.Context(), caller)
	if err != nil {
		h.logger.Warn("list forms failed", zap.Error(err))
		forms = []service.FormResponse{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, forms))
}

// ListDepartments handles GET /api/departments
// @Summary      List departments
// @Tags         forms
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.DepartmentResponse}
// @Router       /api/departments [get]
func (h *FormHandler) ListDepartments(c *gin.Context) {
	departments, err := h.forms.ListDepartments(c.Request.Context())
	if err != nil {
		h.logger.Warn("list departments failed", zap.Error(err))
		departments = []service.DepartmentResponse{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, departments))
}

// ListSubmissions handles GET /api/forms/:slug/submissions
// @Summary      List submissions of a form
// @Description  Newest first, with submitter and signer names
// @Tags         submissions
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true  "Form slug"
// @Success      200   {object}  response.Response{data=[]service.SubmissionResponse}
// @Failure      403   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /api/forms/{slug}/submissions [get]
func (h *FormHandler) ListSubmissions(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	list, err := h.submissions.List(c.Request.Context(), caller, c.Param("slug"))
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnavailable && apperr.KindOf(err) != apperr.KindInternal {
			respondError(c, err)
			return
		}
		h.logger.Warn("list submissions failed", zap.Error(err))
		list = []service.SubmissionResponse{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// CreateSubmission handles POST /api/forms/:slug/submissions
// @Summary      Create a submission
// @Description  Stores the form payload. A payload with an existing serialNumber and customerName pair is rejected.
// @Tags         submissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string  true  "Form slug"
// @Param        payload  body      object  true  "Form payload"
// @Success      201      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/forms/{slug}/submissions [post]
func (h *FormHandler) CreateSubmission(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var payload service.Payload
	if !bindJSON(c, &payload) {
		return
	}
	sub, err := h.submissions.Create(c.Request.Context(), caller, c.Param("slug"), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Created(sub))
}

// Analytics handles GET /api/forms/:slug/analytics
// @Summary      Rejection amounts by department
// @Description  Totals per department and per month over an optional inclusive date range
// @Tags         analytics
// @Produce      json
// @Security     BearerAuth
// @Param        slug        path      string  true   "Form slug"
// @Param        fromDate    query     string  false  "YYYY-MM-DD"
// @Param        toDate      query     string  false  "YYYY-MM-DD"
// @Param        signedOnly  query     bool    false  "Only signed submissions"
// @Param        mine        query     bool    false  "Only the caller's own submissions"
// @Success      200         {object}  response.Response{data=service.AnalyticsResponse}
// @Failure      400         {object}  response.Response
// @Router       /api/forms/{slug}/analytics [get]
func (h *FormHandler) Analytics(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var q service.AnalyticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query: "+err.Error()))
		return
	}
	res, err := h.analytics.Aggregate(c.Request.Context(), caller, c.Param("slug"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
