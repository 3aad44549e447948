package adminapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/service"
	"github.com/talkincode/ispcare/internal/webserver"
	"go.uber.org/zap"
)

func registerRequestRoutes() {
	webserver.ApiGET("/requests", listRequests)
	webserver.ApiGET("/requests/:id", getRequest)
	webserver.ApiPOST("/requests/:id/approve", approveRequest, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiPOST("/requests/:id/reject", rejectRequest, webserver.RequireRole(webserver.RoleOperator))
}

func listRequests(c echo.Context) error {
	page, pageSize := parsePagination(c)
	status := strings.TrimSpace(c.QueryParam("status"))
	typ := strings.TrimSpace(c.QueryParam("type"))
	rows, total, err := backend.Requests.List(c.Request().Context(), status, typ, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query requests", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getRequest(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid request ID", nil)
	}
	r, err := backend.Requests.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, r)
}

func approveRequest(c echo.Context) error {
	return decideRequest(c, true)
}

func rejectRequest(c echo.Context) error {
	return decideRequest(c, false)
}

func decideRequest(c echo.Context, approve bool) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid request ID", nil)
	}
	r, err := backend.Requests.Decide(c.Request().Context(), id, approve, actor(c))
	if err != nil {
		return serviceError(c, err)
	}
	zap.L().Info("adminapi: request decided",
		zap.Int64("request", r.ID),
		zap.String("status", r.Status),
		zap.String("by", r.DecidedBy))
	return ok(c, r)
}

// serviceError maps service sentinels onto the response envelope.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
	case errors.Is(err, service.ErrAlreadyProcessed):
		return fail(c, http.StatusConflict, "ALREADY_PROCESSED", "Request has already been processed", err.Error())
	case errors.Is(err, lock.ErrLockTimeout):
		return fail(c, http.StatusLocked, "LOCKED", "Resource is being modified, try again", err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		return fail(c, http.StatusConflict, "INVALID_TRANSITION", "Status change not allowed", err.Error())
	case errors.Is(err, service.ErrValidation):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
	default:
		zap.L().Error("adminapi: unexpected service error", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", err.Error())
	}
}
