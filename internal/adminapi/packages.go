package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/webserver"
	"github.com/talkincode/ispcare/pkg/common"
)

type packagePayload struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	UpRate   int     `json:"up_rate"`
	DownRate int     `json:"down_rate"`
	Price    float64 `json:"price"`
	Status   string  `json:"status"`
	Sort     int     `json:"sort"`
}

func (p *packagePayload) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return "Name is required"
	}
	if p.Type != domain.PackageSubscription && p.Type != domain.PackageSpeedBoost {
		return "Type must be 'subscription' or 'speed_boost'"
	}
	if p.UpRate <= 0 || p.DownRate <= 0 {
		return "Rates must be positive Kbps values"
	}
	if p.Price < 0 {
		return "Price must be >= 0"
	}
	if p.Status == "" {
		p.Status = common.ENABLED
	}
	if p.Status != common.ENABLED && p.Status != common.DISABLED {
		return "Status must be 'enabled' or 'disabled'"
	}
	return ""
}

func registerPackageRoutes() {
	webserver.ApiGET("/packages", listPackages)
	webserver.ApiGET("/packages/:id", getPackage)
	webserver.ApiPOST("/packages", createPackage, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiPUT("/packages/:id", updatePackage, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiDELETE("/packages/:id", deletePackage, webserver.RequireRole(webserver.RoleAdmin))
}

func listPackages(c echo.Context) error {
	page, pageSize := parsePagination(c)

	sortField := strings.TrimSpace(c.QueryParam("sort"))
	order := strings.ToUpper(strings.TrimSpace(c.QueryParam("order")))
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	// whitelist sort columns
	allowed := map[string]string{
		"id":         "id",
		"name":       "name",
		"price":      "price",
		"sort":       "sort",
		"created_at": "created_at",
	}
	sortCol, found := allowed[sortField]
	if !found {
		sortCol = "sort"
	}

	db := GetDB(c).Model(&domain.Package{})
	if typ := strings.TrimSpace(c.QueryParam("type")); typ != "" {
		db = db.Where("type = ?", typ)
	}
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query packages", err.Error())
	}
	var rows []domain.Package
	if err := db.Order(sortCol + " " + order).Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query packages", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getPackage(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid package ID", nil)
	}
	var p domain.Package
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Package not found", nil)
	}
	return ok(c, p)
}

func createPackage(c echo.Context) error {
	var payload packagePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse package", err.Error())
	}
	if msg := payload.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	now := time.Now()
	p := domain.Package{
		Name:      payload.Name,
		Type:      payload.Type,
		UpRate:    payload.UpRate,
		DownRate:  payload.DownRate,
		Price:     payload.Price,
		Status:    payload.Status,
		Sort:      payload.Sort,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(c).Create(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create package", err.Error())
	}
	return ok(c, p)
}

func updatePackage(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid package ID", nil)
	}
	var p domain.Package
	if err := GetDB(c).Where("id = ?", id).First(&p).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Package not found", nil)
	}
	var payload packagePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse package", err.Error())
	}
	if msg := payload.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	p.Name = payload.Name
	p.Type = payload.Type
	p.UpRate = payload.UpRate
	p.DownRate = payload.DownRate
	p.Price = payload.Price
	p.Status = payload.Status
	p.Sort = payload.Sort
	p.UpdatedAt = time.Now()
	if err := GetDB(c).Save(&p).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update package", err.Error())
	}
	return ok(c, p)
}

func deletePackage(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid package ID", nil)
	}
	var inUse int64
	GetDB(c).Model(&domain.Customer{}).Where("package_id = ?", id).Count(&inUse)
	if inUse > 0 {
		return fail(c, http.StatusConflict, "IN_USE", "Package is assigned to customers", map[string]interface{}{"customers": inUse})
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Package{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete package", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}
