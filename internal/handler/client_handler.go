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

type ClientHandler struct {
	clientService service.ClientService
	auth          *middleware.Auth
}

func NewClientHandler(clientService service.ClientService, auth *middleware.Auth) *ClientHandler {
	return &ClientHandler{clientService: clientService, auth: auth}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	clients.Use(h.auth.RequireRole(model.RoleAdmin, model.RoleApprover, model.RoleCdo))
	{
		clients.GET("", h.ListClients)
		clients.GET("/:id", h.GetClient)
		clients.POST("/prospects", h.auth.RequireRole(model.RoleCdo, model.RoleAdmin), h.CreateProspect)
		clients.POST("/direct", h.auth.RequireRole(model.RoleCdo, model.RoleAdmin), h.RegisterDirect)
		clients.PUT("/:id/register", h.auth.RequireRole(model.RoleCdo, model.RoleAdmin), h.RegisterRegular)
	}
}

// CreateProspect records a new prospect client
// @Summary      Create prospect
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClientDetails  true  "Client details"
// @Success      201      {object}  response.Response{data=model.Client}
// @Failure      400      {object}  response.Response
// @Router       /api/clients/prospects [post]
func (h *ClientHandler) CreateProspect(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	client, err := h.clientService.CreateProspect(c.Request.Context(), actorID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// RegisterRegular completes a prospect's registration and opens its approval request
// @Summary      Register prospect
// @Description  Only prospects whose freebies were released can be registered
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Client ID"
// @Param        payload  body      service.ClientDetails  true  "Client details"
// @Success      201      {object}  response.Response{data=service.RegistrationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/clients/{id}/register [put]
func (h *ClientHandler) RegisterRegular(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.clientService.RegisterRegular(c.Request.Context(), actorID, id, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// RegisterDirect creates a client and opens its direct registration request
// @Summary      Direct registration
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClientDetails  true  "Client details"
// @Success      201      {object}  response.Response{data=service.RegistrationResponse}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/clients/direct [post]
func (h *ClientHandler) RegisterDirect(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.clientService.RegisterDirect(c.Request.Context(), actorID, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// GetClient returns one client
// @Summary      Get client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=model.Client}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	client, err := h.clientService.GetClient(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// ListClients lists clients
// @Summary      List clients
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "Registration status"
// @Param        origin    query     string  false  "Prospecting or Direct"
// @Param        search    query     string  false  "Name or business name"
// @Param        added_by  query     string  false  "Creator user ID"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	addedBy, ok := optionalUUID(c, "added_by")
	if !ok {
		return
	}
	p := pagination.Parse(c)

	clients, total, err := h.clientService.ListClients(c.Request.Context(), service.ClientListFilter{
		RegistrationStatus: c.Query("status"),
		Origin:             c.Query("origin"),
		Search:             c.Query("search"),
		AddedBy:            addedBy,
		Page:               p.Page,
		Limit:              p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(clients, total)))
}
