package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/internal/webserver"
	"github.com/talkincode/ispcare/pkg/common"
)

type nasPayload struct {
	Name       string `json:"name"`
	Ipaddr     string `json:"ipaddr"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	ApiPort    int    `json:"api_port"`
	VendorCode string `json:"vendor_code"`
	Remark     string `json:"remark"`
}

type nasUpdatePayload struct {
	Name     *string `json:"name"`
	Ipaddr   *string `json:"ipaddr"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	ApiPort  *int    `json:"api_port"`
	ApiState *string `json:"api_state"`
	Status   *string `json:"status"`
	Remark   *string `json:"remark"`
}

// dialNas is swapped in tests.
var dialNas qos.Dialer = qos.DialNas

func registerNasRoutes() {
	webserver.ApiGET("/network/nas", listNas)
	webserver.ApiGET("/network/nas/:id", getNas)
	webserver.ApiPOST("/network/nas", createNas, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiPUT("/network/nas/:id", updateNas, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiDELETE("/network/nas/:id", deleteNas, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiPOST("/network/nas/:id/probe", probeNas, webserver.RequireRole(webserver.RoleOperator))
}

func listNas(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.NetNas{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(name) LIKE ? OR ipaddr LIKE ?", "%"+strings.ToLower(q)+"%", "%"+q+"%")
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query NAS", err.Error())
	}
	var rows []domain.NetNas
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query NAS", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func loadNas(c echo.Context) (*domain.NetNas, error) {
	id, valid := parseID(c)
	if !valid {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid NAS ID", nil)
	}
	var nas domain.NetNas
	err := GetDB(c).Where("id = ?", id).First(&nas).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(c, http.StatusNotFound, "NAS_NOT_FOUND", "NAS not found", nil)
	}
	if err != nil {
		return nil, fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query NAS", err.Error())
	}
	return &nas, nil
}

func getNas(c echo.Context) error {
	nas, err := loadNas(c)
	if nas == nil {
		return err
	}
	return ok(c, nas)
}

func createNas(c echo.Context) error {
	var payload nasPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse NAS parameters", err.Error())
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Ipaddr = strings.TrimSpace(payload.Ipaddr)
	if payload.Name == "" || payload.Ipaddr == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Name and ipaddr are required", nil)
	}
	if payload.VendorCode == "" {
		payload.VendorCode = domain.VendorMikrotik
	}
	if payload.ApiPort <= 0 {
		payload.ApiPort = 8728
	}
	now := time.Now()
	nas := domain.NetNas{
		ID:         common.UUIDint64(),
		Name:       payload.Name,
		Ipaddr:     payload.Ipaddr,
		Username:   payload.Username,
		Password:   payload.Password,
		ApiPort:    payload.ApiPort,
		ApiState:   common.ENABLED,
		VendorCode: payload.VendorCode,
		Status:     common.ENABLED,
		Remark:     payload.Remark,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := GetDB(c).Create(&nas).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create NAS", err.Error())
	}
	return ok(c, nas)
}

func updateNas(c echo.Context) error {
	nas, err := loadNas(c)
	if nas == nil {
		return err
	}
	var payload nasUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse NAS parameters", err.Error())
	}
	if payload.Name != nil {
		nas.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.Ipaddr != nil {
		nas.Ipaddr = strings.TrimSpace(*payload.Ipaddr)
	}
	if payload.Username != nil {
		nas.Username = *payload.Username
	}
	if payload.Password != nil && *payload.Password != "" {
		nas.Password = *payload.Password
	}
	if payload.ApiPort != nil && *payload.ApiPort > 0 {
		nas.ApiPort = *payload.ApiPort
	}
	if payload.ApiState != nil {
		nas.ApiState = *payload.ApiState
	}
	if payload.Status != nil {
		nas.Status = *payload.Status
	}
	if payload.Remark != nil {
		nas.Remark = *payload.Remark
	}
	if nas.Name == "" || nas.Ipaddr == "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Name and ipaddr are required", nil)
	}
	nas.UpdatedAt = time.Now()
	if err := GetDB(c).Save(nas).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update NAS", err.Error())
	}
	return ok(c, nas)
}

func deleteNas(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid NAS ID", nil)
	}
	var inUse int64
	GetDB(c).Model(&domain.Customer{}).Where("nas_id = ?", id).Count(&inUse)
	if inUse > 0 {
		return fail(c, http.StatusConflict, "IN_USE", "NAS still serves customers", map[string]interface{}{"customers": inUse})
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.NetNas{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete NAS", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}

// probeNas opens an API session to check credentials and records the result.
func probeNas(c echo.Context) error {
	nas, err := loadNas(c)
	if nas == nil {
		return err
	}
	result := "ok"
	client, err := dialNas(nas)
	if err != nil {
		result = err.Error()
	} else {
		_ = client.Close()
	}
	GetDB(c).Model(nas).Updates(map[string]interface{}{
		"api_last_probe_at": time.Now(),
		"api_last_result":   result,
	})
	if err != nil {
		return fail(c, http.StatusBadGateway, "NAS_UNREACHABLE", "NAS API probe failed", result)
	}
	return ok(c, map[string]interface{}{"id": nas.ID, "result": result})
}
