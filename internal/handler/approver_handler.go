package handler

import (
	"net/http"

	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/service"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApproverHandler struct {
	approverService service.ApproverService
	auth            *middleware.Auth
}

func NewApproverHandler(approverService service.ApproverService, auth *middleware.Auth) *ApproverHandler {
	return &ApproverHandler{approverService: approverService, auth: auth}
}

func (h *ApproverHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvers := router.Group("/api/approvers")
	approvers.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		approvers.GET("/:module", h.ListChain)
		approvers.PUT("/:module", h.ReplaceChain)
	}
}

// ListChain returns the configured chain of a module
// @Summary      List approver chain
// @Tags         approvers
// @Produce      json
// @Security     BearerAuth
// @Param        module  path      string  true  "Module name"
// @Success      200     {object}  response.Response{data=[]service.ApproverResponse}
// @Failure      400     {object}  response.Response
// @Router       /api/approvers/{module} [get]
func (h *ApproverHandler) ListChain(c *gin.Context) {
	chain, err := h.approverService.ListChain(c.Request.Context(), model.Module(c.Param("module")))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, chain))
}

// ReplaceChain swaps the whole chain of a module. Open requests keep their snapshot.
// @Summary      Replace approver chain
// @Tags         approvers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        module   path      string                       true  "Module name"
// @Param        payload  body      service.ReplaceChainRequest  true  "Approvers by level"
// @Success      200      {object}  response.Response{data=[]service.ApproverResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/approvers/{module} [put]
func (h *ApproverHandler) ReplaceChain(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ReplaceChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	chain, err := h.approverService.ReplaceChain(c.Request.Context(), actorID, model.Module(c.Param("module")), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, chain, "Approver chain updated"))
}
