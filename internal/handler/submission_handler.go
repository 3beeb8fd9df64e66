package handler

import (
	"io"
	"net/http"

	"formflow/internal/apperr"
	"formflow/internal/middleware"
	"formflow/internal/service"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SubmissionHandler struct {
	submissions service.SubmissionService
	workflow    service.WorkflowService
	signing     service.SigningService
	authn       *middleware.Authenticator
	logger      *zap.Logger
}

func NewSubmissionHandler(submissions service.SubmissionService, workflow service.WorkflowService, signing service.SigningService, authn *middleware.Authenticator, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, workflow: workflow, signing: signing, authn: authn, logger: logger.Named("submission_handler")}
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/submissions", h.authn.RequireAuth())
	{
		group.GET("/mine", h.ListMine)
		group.GET("/:id", h.GetSubmission)
		group.PUT("/:id", h.UpdateSubmission)
		group.DELETE("/:id", h.DeleteSubmission)
		group.POST("/:id/sign", h.Sign)
		group.POST("/:id/unlock", h.Unlock)
		group.GET("/:id/snapshot", h.Snapshot)
		group.POST("/:id/pdf", h.UploadPDF)
		group.GET("/:id/pdf", h.DownloadPDF)
		group.GET("/:id/workflow", h.GetWorkflow)
		group.POST("/:id/workflow", h.AssignWorkflow)
		group.POST("/:id/workflow/advance", h.AdvanceStep)
	}
	router.GET("/api/workflow/pending", h.authn.RequireAuth(), h.ListPending)
}

// ListMine handles GET /api/submissions/mine
// @Summary      List my submissions
// @Description  Submissions created by the caller across every form, newest first
// @Tags         submissions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.SubmissionResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/submissions/mine [get]
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	list, err := h.submissions.ListMine(c.Request.Context(), caller)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnavailable {
			respondError(c, err)
			return
		}
		h.logger.Warn("list own submissions failed", zap.Error(err))
		list = []service.SubmissionResponse{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// GetSubmission handles GET /api/submissions/:id
// @Summary      Get a submission
// @Tags         submissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// UpdateSubmission handles PUT /api/submissions/:id
// @Summary      Replace a submission payload
// @Description  Rejected with 409 while the submission is signed
// @Tags         submissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Submission ID"
// @Param        payload  body      object  true  "Form payload"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/submissions/{id} [put]
func (h *SubmissionHandler) UpdateSubmission(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var payload service.Payload
	if !bindJSON(c, &payload) {
		return
	}
	sub, err := h.submissions.Update(c.Request.Context(), caller, id, payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// DeleteSubmission handles DELETE /api/submissions/:id
// @Summary      Delete a submission
// @Tags         submissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/submissions/{id} [delete]
func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.submissions.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Submission deleted"}))
}

// Sign handles POST /api/submissions/:id/sign
// @Summary      Sign and lock a submission
// @Description  The signer re-enters its own credentials; its role must be admin or ceo
// @Tags         signing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true  "Submission ID"
// @Param        payload  body      service.SignRequest  true  "Signer credentials and signature image"
// @Success      200      {object}  response.Response{data=service.SubmissionResponse}
// @Failure      401      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/submissions/{id}/sign [post]
func (h *SubmissionHandler) Sign(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.SignRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.signing.Sign(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// Unlock handles POST /api/submissions/:id/unlock
// @Summary      Unlock a signed submission
// @Description  Clears the signature and PDF so the submission can be edited again
// @Tags         signing
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SubmissionResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/submissions/{id}/unlock [post]
func (h *SubmissionHandler) Unlock(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	sub, err := h.signing.Unlock(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// Snapshot handles GET /api/submissions/:id/snapshot
// @Summary      Data for client-side PDF rendering
// @Tags         signing
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.SnapshotResponse}
// @Router       /api/submissions/{id}/snapshot [get]
func (h *SubmissionHandler) Snapshot(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	snap, err := h.signing.Snapshot(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, snap))
}

// UploadPDF handles POST /api/submissions/:id/pdf
// @Summary      Attach the rendered PDF of a signed submission
// @Tags         signing
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "Submission ID"
// @Param        file  formData  file    true  "PDF document"
// @Success      200   {object}  response.Response{data=service.SubmissionResponse}
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/submissions/{id}/pdf [post]
func (h *SubmissionHandler) UploadPDF(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "file is required"))
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, 10<<20+1))
	if err != nil {
		respondError(c, err)
		return
	}

	sub, err := h.signing.AttachPDF(c.Request.Context(), caller, id, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sub))
}

// DownloadPDF handles GET /api/submissions/:id/pdf
// @Summary      Download the stored PDF
// @Tags         signing
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {file}    binary
// @Failure      404  {object}  response.Response
// @Router       /api/submissions/{id}/pdf [get]
func (h *SubmissionHandler) DownloadPDF(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	rc, contentType, err := h.signing.GetPDF(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `inline; filename="`+id.String()+`.pdf"`)
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

// GetWorkflow handles GET /api/submissions/:id/workflow
// @Summary      Approval chain of a submission
// @Tags         workflow
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Submission ID"
// @Success      200  {object}  response.Response{data=service.WorkflowResponse}
// @Router       /api/submissions/{id}/workflow [get]
func (h *SubmissionHandler) GetWorkflow(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	wf, err := h.workflow.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, wf))
}

// AssignWorkflow handles POST /api/submissions/:id/workflow
// @Summary      Assign an approval chain
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Submission ID"
// @Param        payload  body      service.AssignWorkflowRequest  true  "Ordered approver steps"
// @Success      201      {object}  response.Response{data=service.WorkflowResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/submissions/{id}/workflow [post]
func (h *SubmissionHandler) AssignWorkflow(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.AssignWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}
	wf, err := h.workflow.Assign(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Created(wf))
}

// AdvanceStep handles POST /api/submissions/:id/workflow/advance
// @Summary      Sign the caller's workflow step
// @Description  Allowed only when every earlier step is signed. Optional field edits are merged into the payload.
// @Tags         workflow
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Submission ID"
// @Param        payload  body      service.AdvanceStepRequest  false "Field edits and comments"
// @Success      200      {object}  response.Response{data=service.WorkflowResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/submissions/{id}/workflow/advance [post]
func (h *SubmissionHandler) AdvanceStep(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req service.AdvanceStepRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	wf, err := h.workflow.Advance(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, wf))
}

// ListPending handles GET /api/workflow/pending
// @Summary      Submissions waiting for the caller's approval
// @Tags         workflow
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.SubmissionResponse}
// @Router       /api/workflow/pending [get]
func (h *SubmissionHandler) ListPending(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	list, err := h.workflow.ListPending(c.Request.Context(), caller)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnavailable {
			respondError(c, err)
			return
		}
		h.logger.Warn("list pending approvals failed", zap.Error(err))
		list = []service.SubmissionResponse{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}
