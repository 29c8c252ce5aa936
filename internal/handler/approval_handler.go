package handler

import (
	"net/http"

	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/service"
	"arcana/pkg/pagination"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	auth            *middleware.Auth
}

func NewApprovalHandler(approvalService service.ApprovalService, auth *middleware.Auth) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, auth: auth}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	requests.Use(h.auth.RequireRole(model.RoleAdmin, model.RoleApprover, model.RoleCdo))
	{
		requests.GET("/pending", h.auth.RequireRole(model.RoleAdmin, model.RoleApprover), h.ListPending)
		requests.GET("/:id", h.GetRequest)
		requests.GET("/:id/history", h.History)
		requests.POST("/:id/decision", h.auth.RequireRole(model.RoleAdmin, model.RoleApprover), h.Decide)
		requests.POST("/:id/void", h.Void)
	}
}

// Decide records an approve or reject decision on the current level
// @Summary      Submit decision
// @Description  Approves or rejects the current level of a request. A reject needs a reason.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Request ID"
// @Param        payload  body      service.DecisionRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=workflow.Result}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	approverID, ok := actor(c)
	if !ok {
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.approvalService.Decide(c.Request.Context(), id, approverID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Void closes an open request without a decision
// @Summary      Void request
// @Description  Admins, or approvers on an open level, may void a request
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string               true   "Request ID"
// @Param        payload  body      service.VoidRequest  false  "Reason"
// @Success      200      {object}  response.Response{data=workflow.Result}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/void [post]
func (h *ApprovalHandler) Void(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req service.VoidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}

	isAdmin := middleware.ActorRole(c) == model.RoleAdmin
	result, err := h.approvalService.Void(c.Request.Context(), id, actorID, isAdmin, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetRequest returns a request with its full chain
// @Summary      Get request
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, err := h.approvalService.GetRequest(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ListPending returns the requests waiting on the caller
// @Summary      List pending requests
// @Description  Requests whose current level lists the caller as a candidate
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        module  query     string  false  "Module filter"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/requests/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	approverID, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	items, total, err := h.approvalService.ListPending(c.Request.Context(), approverID, service.PendingFilter{
		Module: model.Module(c.Query("module")),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(items, total)))
}

// History lists every level of a request in order
// @Summary      Request history
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]service.HistoryEntry}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/history [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entries, err := h.approvalService.History(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}
