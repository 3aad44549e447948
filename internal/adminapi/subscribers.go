package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/webserver"
	"github.com/talkincode/ispcare/pkg/common"
)

func registerSubscriberRoutes() {
	webserver.ApiGET("/customers", listCustomers)
	webserver.ApiGET("/customers/:id", getCustomer)
	webserver.ApiPOST("/customers", createCustomer, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiPUT("/customers/:id", updateCustomer, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiDELETE("/customers/:id", deleteCustomer, webserver.RequireRole(webserver.RoleAdmin))

	webserver.ApiGET("/technicians", listTechnicians)
	webserver.ApiPOST("/technicians", createTechnician, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiPUT("/technicians/:id", updateTechnician, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiDELETE("/technicians/:id", deleteTechnician, webserver.RequireRole(webserver.RoleAdmin))
}

type customerPayload struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	PppoeUser string `json:"pppoe_user"`
	NasId     int64  `json:"nas_id,string"`
	PackageId int64  `json:"package_id,string"`
	Status    string `json:"status"`
	Remark    string `json:"remark"`
}

func (p *customerPayload) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = common.NormalizePhone(p.Phone)
	p.PppoeUser = strings.TrimSpace(p.PppoeUser)
	if p.Name == "" {
		return "Customer name is required"
	}
	if p.Phone == "" {
		return "A valid phone number is required"
	}
	if p.Status == "" {
		p.Status = common.ENABLED
	}
	return ""
}

func listCustomers(c echo.Context) error {
	page, pageSize := parsePagination(c)
	base := GetDB(c).Model(&domain.Customer{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		base = base.Where("LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(pppoe_user) LIKE ?", like, like, like)
	}
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customers", err.Error())
	}
	var rows []domain.Customer
	if err := base.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customers", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

func getCustomer(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var cu domain.Customer
	if err := GetDB(c).Where("id = ?", id).First(&cu).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query customer", err.Error())
	}
	return ok(c, cu)
}

func createCustomer(c echo.Context) error {
	var payload customerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer parameters", err.Error())
	}
	if msg := payload.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	var dup int64
	GetDB(c).Model(&domain.Customer{}).Where("phone = ?", payload.Phone).Count(&dup)
	if dup > 0 {
		return fail(c, http.StatusConflict, "DUPLICATE_CUSTOMER", "Customer with this phone already exists", nil)
	}
	now := time.Now()
	cu := domain.Customer{
		ID:        common.UUIDint64(),
		Name:      payload.Name,
		Phone:     payload.Phone,
		Address:   payload.Address,
		PppoeUser: payload.PppoeUser,
		NasId:     payload.NasId,
		PackageId: payload.PackageId,
		Status:    payload.Status,
		Remark:    payload.Remark,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(c).Create(&cu).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create customer", err.Error())
	}
	return ok(c, cu)
}

func updateCustomer(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	var cu domain.Customer
	if err := GetDB(c).Where("id = ?", id).First(&cu).Error; err != nil {
		return fail(c, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "Customer not found", nil)
	}
	var payload customerPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse customer parameters", err.Error())
	}
	if msg := payload.validate(); msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	var dup int64
	GetDB(c).Model(&domain.Customer{}).Where("phone = ? AND id <> ?", payload.Phone, id).Count(&dup)
	if dup > 0 {
		return fail(c, http.StatusConflict, "DUPLICATE_CUSTOMER", "Customer with this phone already exists", nil)
	}
	cu.Name = payload.Name
	cu.Phone = payload.Phone
	cu.Address = payload.Address
	cu.PppoeUser = payload.PppoeUser
	cu.NasId = payload.NasId
	cu.PackageId = payload.PackageId
	cu.Status = payload.Status
	cu.Remark = payload.Remark
	cu.UpdatedAt = time.Now()
	if err := GetDB(c).Save(&cu).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update customer", err.Error())
	}
	return ok(c, cu)
}

func deleteCustomer(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Customer{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete customer", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}

type technicianPayload struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Area   string `json:"area"`
	Status string `json:"status"`
}

func listTechnicians(c echo.Context) error {
	var rows []domain.Technician
	if err := GetDB(c).Order("name ASC").Find(&rows).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query technicians", err.Error())
	}
	return ok(c, rows)
}

func bindTechnician(c echo.Context) (technicianPayload, string) {
	var payload technicianPayload
	if err := c.Bind(&payload); err != nil {
		return payload, "Unable to parse technician parameters"
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Phone = common.NormalizePhone(payload.Phone)
	if payload.Name == "" || payload.Phone == "" {
		return payload, "Technician name and phone are required"
	}
	if payload.Status == "" {
		payload.Status = common.ENABLED
	}
	return payload, ""
}

func createTechnician(c echo.Context) error {
	payload, msg := bindTechnician(c)
	if msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	var dup int64
	GetDB(c).Model(&domain.Technician{}).Where("phone = ?", payload.Phone).Count(&dup)
	if dup > 0 {
		return fail(c, http.StatusConflict, "DUPLICATE_TECHNICIAN", "Technician with this phone already exists", nil)
	}
	now := time.Now()
	t := domain.Technician{
		ID:        common.UUIDint64(),
		Name:      payload.Name,
		Phone:     payload.Phone,
		Area:      payload.Area,
		Status:    payload.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(c).Create(&t).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create technician", err.Error())
	}
	return ok(c, t)
}

func updateTechnician(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid technician ID", nil)
	}
	var t domain.Technician
	if err := GetDB(c).Where("id = ?", id).First(&t).Error; err != nil {
		return fail(c, http.StatusNotFound, "TECHNICIAN_NOT_FOUND", "Technician not found", nil)
	}
	payload, msg := bindTechnician(c)
	if msg != "" {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	}
	t.Name = payload.Name
	t.Phone = payload.Phone
	t.Area = payload.Area
	t.Status = payload.Status
	t.UpdatedAt = time.Now()
	if err := GetDB(c).Save(&t).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update technician", err.Error())
	}
	return ok(c, t)
}

func deleteTechnician(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid technician ID", nil)
	}
	if err := GetDB(c).Where("id = ?", id).Delete(&domain.Technician{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete technician", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}
