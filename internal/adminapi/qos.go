package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/internal/webserver"
	"go.uber.org/zap"
)

// qosSyncResponse represents a manual sync run
type qosSyncResponse struct {
	Processed int       `json:"processed"`
	Pending   int64     `json:"pending"`
	StartTime time.Time `json:"start_time"`
	Duration  string    `json:"duration"`
}

func registerQoSRoutes() {
	webserver.ApiGET("/qos", listQoS)
	webserver.ApiGET("/qos/:id/logs", listQoSLogs)
	webserver.ApiPOST("/qos/sync", triggerQoSSync, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiPOST("/customers/:id/restart-session", restartCustomerSession, webserver.RequireRole(webserver.RoleOperator))
}

func listQoS(c echo.Context) error {
	page, pageSize := parsePagination(c)
	filter := map[string]interface{}{
		"status": strings.TrimSpace(c.QueryParam("status")),
		"kind":   strings.TrimSpace(c.QueryParam("kind")),
	}
	if v := c.QueryParam("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
		}
		filter["customer_id"] = id
	}
	repo := &qos.GormNasQoSRepository{DB: backend.DB}
	rows, total, err := repo.List(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query QoS records", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func listQoSLogs(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid QoS ID", nil)
	}
	repo := &qos.GormNasQoSLogRepository{DB: backend.DB}
	logs, err := repo.GetByQoSID(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query QoS logs", err.Error())
	}
	return ok(c, logs)
}

// triggerQoSSync pushes pending queue changes now instead of waiting for
// the next sync tick.
func triggerQoSSync(c echo.Context) error {
	if backend.Network == nil {
		return fail(c, http.StatusServiceUnavailable, "QOS_NOT_INITIALIZED", "QoS service not initialized", nil)
	}
	start := time.Now()
	processed := backend.Network.SyncPending(c.Request().Context())

	var pending int64
	GetDB(c).Model(&domain.NasQoS{}).Where("status = ?", domain.QoSPending).Count(&pending)

	zap.L().Info("adminapi: manual qos sync",
		zap.Int("processed", processed),
		zap.Int64("pending", pending),
		zap.Duration("duration", time.Since(start)))
	return ok(c, qosSyncResponse{
		Processed: processed,
		Pending:   pending,
		StartTime: start,
		Duration:  time.Since(start).String(),
	})
}

func restartCustomerSession(c echo.Context) error {
	if backend.Network == nil {
		return fail(c, http.StatusServiceUnavailable, "QOS_NOT_INITIALIZED", "QoS service not initialized", nil)
	}
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var cu domain.Customer
	if err := GetDB(c).Where("id = ?", id).First(&cu).Error; err != nil {
		return fail(c, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found", nil)
	}
	if cu.NasId == 0 || cu.PppoeUser == "" {
		return fail(c, http.StatusBadRequest, "NO_CONNECTION", "Customer has no PPPoE account", nil)
	}
	removed, err := backend.Network.RestartSession(c.Request().Context(), cu.NasId, cu.PppoeUser)
	if err != nil {
		return fail(c, http.StatusBadGateway, "NAS_ERROR", "Failed to restart session", err.Error())
	}
	zap.L().Info("adminapi: session restarted",
		zap.String("pppoe_user", cu.PppoeUser),
		zap.Int("removed", removed),
		zap.String("by", actor(c)))
	return ok(c, map[string]interface{}{"customer_id": cu.ID, "removed": removed})
}
