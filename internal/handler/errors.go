package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"libraryhub/internal/model"
	"libraryhub/internal/service"
	"libraryhub/pkg/response"

	"github.com/gin-gonic/gin"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrDuplicatePendingRequest, http.StatusConflict},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrInvalidLoanTransition, http.StatusConflict},
	{service.ErrAlreadyExists, http.StatusConflict},
	{service.ErrBookOnLoan, http.StatusConflict},
	{service.ErrUnauthorizedActor, http.StatusForbidden},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrBookNotFound, http.StatusNotFound},
	{service.ErrInactiveAccount, http.StatusUnprocessableEntity},
	{service.ErrBookUnavailable, http.StatusUnprocessableEntity},
	{service.ErrInvalidOutcome, http.StatusUnprocessableEntity},
}

// statusFor maps domain errors to HTTP status codes. Anything unknown is a 500.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "Internal server error"
	}
	c.JSON(status, response.Error(status, msg))
}

// pathID parses the :id route param, writing a 400 on failure.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid id"))
		return 0, false
	}
	return uint(id), true
}

// queryID parses an optional numeric query param.
func queryID(c *gin.Context, key string) (*uint, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+key))
		return nil, false
	}
	v := uint(id)
	return &v, true
}

var (
	staffRoles = []string{model.RoleStaff, model.RoleAdmin, model.RoleSuperAdmin}
	adminRoles = []string{model.RoleAdmin, model.RoleSuperAdmin}
)
