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

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		group.GET("", h.GetAuditLogs)
		group.GET("/:entityID", h.GetEntityLogs)
	}
}

// GetAuditLogs retrieves paginated records, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}))
}

// GetEntityLogs returns the trail of one request, subject or module chain
// @Summary      Get entity audit trail
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entityID  path      string  true  "Request, subject ID or module name"
// @Success      200       {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs/{entityID} [get]
func (h *AuditHandler) GetEntityLogs(c *gin.Context) {
	logs, err := h.auditService.GetEntityLogs(c.Request.Context(), c.Param("entityID"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}
