package handler

import (
	"errors"
	"net/http"

	"arcana/internal/middleware"
	"arcana/internal/workflow"
	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail writes err using the status of its workflow kind
func fail(c *gin.Context, err error) {
	res := errorResponse(err)
	if res.StatusCode == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(res.StatusCode, res)
}

// errorResponse classifies err into an HTTP status and error payload. Errors
// outside the workflow taxonomy are reported as 500 without their detail.
func errorResponse(err error) response.Response {
	var we *workflow.Error
	if !errors.As(err, &we) {
		return response.Error(http.StatusInternalServerError, "internal server error")
	}

	res := response.Error(statusFor(we.Kind), we.Message)
	res.Code = we.Code
	res.Retryable = we.Retryable
	return res
}

func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindExternalDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// pathID parses the :id route param, writing a 400 when it is not a UUID
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// actor returns the authenticated user, writing a 401 when it is missing
func actor(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.ActorID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+key)
		return nil, false
	}
	return &id, true
}
