package handler

import (
	"mime/multipart"
	"net/http"

	"arcana/internal/middleware"
	"arcana/internal/model"
	"arcana/internal/service"
	"arcana/pkg/pagination"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxEvidenceSize caps each release upload.
const maxEvidenceSize = 10 << 20

type FreebieHandler struct {
	freebieService service.FreebieService
	auth           *middleware.Auth
}

func NewFreebieHandler(freebieService service.FreebieService, auth *middleware.Auth) *FreebieHandler {
	return &FreebieHandler{freebieService: freebieService, auth: auth}
}

type requestFreebiesBody struct {
	ClientID uuid.UUID                  `json:"client_id" binding:"required"`
	Items    []service.FreebieItemInput `json:"items" binding:"required,min=1,dive"`
}

type updateFreebieItemsBody struct {
	Items []service.FreebieItemInput `json:"items" binding:"required,min=1,dive"`
}

func (h *FreebieHandler) RegisterRoutes(router *gin.RouterGroup) {
	freebies := router.Group("/api/freebies")
	freebies.Use(h.auth.RequireRole(model.RoleAdmin, model.RoleApprover, model.RoleCdo))
	{
		freebies.GET("", h.ListFreebies)
		freebies.GET("/:id", h.GetFreebie)
		freebies.POST("", h.auth.RequireRole(model.RoleCdo), h.RequestFreebies)
		freebies.PUT("/:id/items", h.auth.RequireRole(model.RoleCdo), h.UpdateItems)
		freebies.POST("/:id/release", h.auth.RequireRole(model.RoleCdo), h.Release)
	}
}

// RequestFreebies requests free items for a prospect and opens the approval request
// @Summary      Request freebies
// @Tags         freebies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      requestFreebiesBody  true  "Freebie batch"
// @Success      201      {object}  response.Response{data=model.FreebieRequest}
// @Failure      400      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/freebies [post]
func (h *FreebieHandler) RequestFreebies(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req requestFreebiesBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	freebie, err := h.freebieService.RequestFreebies(c.Request.Context(), actorID, req.ClientID, req.Items)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, freebie))
}

// UpdateItems replaces the items of a batch still under review
// @Summary      Update freebie items
// @Tags         freebies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Freebie request ID"
// @Param        payload  body      updateFreebieItemsBody  true  "Items"
// @Success      200      {object}  response.Response{data=model.FreebieRequest}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/freebies/{id}/items [put]
func (h *FreebieHandler) UpdateItems(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req updateFreebieItemsBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	freebie, err := h.freebieService.UpdateFreebieItems(c.Request.Context(), actorID, id, req.Items)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, freebie))
}

// Release records delivery of an approved batch with its photo proof and e-signature
// @Summary      Release freebies
// @Description  Multipart upload. On a storage failure nothing is recorded and the call can be retried.
// @Tags         freebies
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id           path      string  true  "Freebie request ID"
// @Param        photo_proof  formData  file    true  "Photo of the delivered items"
// @Param        e_signature  formData  file    true  "Signature of the recipient"
// @Success      200          {object}  response.Response{data=model.FreebieRequest}
// @Failure      400          {object}  response.Response
// @Failure      409          {object}  response.Response
// @Failure      502          {object}  response.Response
// @Router       /api/freebies/{id}/release [post]
func (h *FreebieHandler) Release(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}

	photo, ok := formFile(c, "photo_proof")
	if !ok {
		return
	}
	signature, ok := formFile(c, "e_signature")
	if !ok {
		return
	}

	photoFile, err := photo.Open()
	if err != nil {
		badRequest(c, "Unreadable photo_proof")
		return
	}
	defer photoFile.Close()
	signatureFile, err := signature.Open()
	if err != nil {
		badRequest(c, "Unreadable e_signature")
		return
	}
	defer signatureFile.Close()

	freebie, err := h.freebieService.ReleaseFreebies(c.Request.Context(), service.ReleaseInput{
		FreebieID:  id,
		ActorID:    actorID,
		PhotoProof: service.Evidence{Filename: photo.Filename, Content: photoFile},
		ESignature: service.Evidence{Filename: signature.Filename, Content: signatureFile},
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, freebie))
}

func formFile(c *gin.Context, field string) (*multipart.FileHeader, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		badRequest(c, field+" is required")
		return nil, false
	}
	if fh.Size > maxEvidenceSize {
		badRequest(c, field+" is too large")
		return nil, false
	}
	return fh, true
}

// GetFreebie returns one freebie batch with its items
// @Summary      Get freebie request
// @Tags         freebies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Freebie request ID"
// @Success      200  {object}  response.Response{data=model.FreebieRequest}
// @Failure      404  {object}  response.Response
// @Router       /api/freebies/{id} [get]
func (h *FreebieHandler) GetFreebie(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	freebie, err := h.freebieService.GetFreebie(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, freebie))
}

// ListFreebies lists freebie batches
// @Summary      List freebie requests
// @Tags         freebies
// @Produce      json
// @Security     BearerAuth
// @Param        status     query     string  false  "Status"
// @Param        client_id  query     string  false  "Client ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=object}
// @Router       /api/freebies [get]
func (h *FreebieHandler) ListFreebies(c *gin.Context) {
	clientID, ok := optionalUUID(c, "client_id")
	if !ok {
		return
	}
	p := pagination.Parse(c)

	freebies, total, err := h.freebieService.ListFreebies(c.Request.Context(), service.FreebieListFilter{
		Status:   c.Query("status"),
		ClientID: clientID,
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(freebies, total)))
}
