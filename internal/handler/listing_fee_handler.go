package handler

import (
	"net/http"

	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/service"
	"arcana/pkg/pagination"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ListingFeeHandler struct {
	feeService service.ListingFeeService
	auth       *middleware.Auth
}

func NewListingFeeHandler(feeService service.ListingFeeService, auth *middleware.Auth) *ListingFeeHandler {
	return &ListingFeeHandler{feeService: feeService, auth: auth}
}

type requestListingFeeBody struct {
	ClientID uuid.UUID                     `json:"client_id" binding:"required"`
	Items    []service.ListingFeeItemInput `json:"items" binding:"required,min=1,dive"`
}

func (h *ListingFeeHandler) RegisterRoutes(router *gin.RouterGroup) {
	fees := router.Group("/api/listing-fees")
	fees.Use(h.auth.RequireRole(model.RoleAdmin, model.RoleApprover, model.RoleCdo))
	{
		fees.GET("", h.ListListingFees)
		fees.GET("/:id", h.GetListingFee)
		fees.POST("", h.auth.RequireRole(model.RoleCdo), h.RequestListingFee)
	}
}

// RequestListingFee requests a listing fee for a registered client
// @Summary      Request listing fee
// @Tags         listing-fees
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      requestListingFeeBody  true  "Listing fee"
// @Success      201      {object}  response.Response{data=model.ListingFee}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/listing-fees [post]
func (h *ListingFeeHandler) RequestListingFee(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req requestListingFeeBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	fee, err := h.feeService.RequestListingFee(c.Request.Context(), actorID, req.ClientID, req.Items)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, fee))
}

// GetListingFee returns one listing fee with its items
// @Summary      Get listing fee
// @Tags         listing-fees
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Listing fee ID"
// @Success      200  {object}  response.Response{data=model.ListingFee}
// @Failure      404  {object}  response.Response
// @Router       /api/listing-fees/{id} [get]
func (h *ListingFeeHandler) GetListingFee(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	fee, err := h.feeService.GetListingFee(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, fee))
}

// ListListingFees lists listing fees. mine=true keeps fees waiting on the caller.
// @Summary      List listing fees
// @Tags         listing-fees
// @Produce      json
// @Security     BearerAuth
// @Param        status        query     string  false  "Status"
// @Param        search        query     string  false  "Client business name"
// @Param        requested_by  query     string  false  "Requester user ID"
// @Param        mine          query     bool    false  "Only fees waiting on the caller"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=object}
// @Router       /api/listing-fees [get]
func (h *ListingFeeHandler) ListListingFees(c *gin.Context) {
	requestedBy, ok := optionalUUID(c, "requested_by")
	if !ok {
		return
	}
	filter := service.ListingFeeListFilter{
		Status:      c.Query("status"),
		Search:      c.Query("search"),
		RequestedBy: requestedBy,
	}
	if c.Query("mine") == "true" {
		actorID, ok := actor(c)
		if !ok {
			return
		}
		filter.CurrentApproverID = &actorID
	}
	p := pagination.Parse(c)
	filter.Page, filter.Limit = p.Page, p.Limit

	fees, total, err := h.feeService.ListListingFees(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(fees, total)))
}
