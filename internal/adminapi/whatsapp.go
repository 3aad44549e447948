package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/webserver"
	"go.uber.org/zap"
)

func registerWhatsAppRoutes() {
	webserver.ApiGET("/whatsapp/status", getWhatsAppStatus)
	webserver.ApiGET("/whatsapp/qr", getWhatsAppQR, webserver.RequireRole(webserver.RoleAdmin))
	webserver.ApiGET("/whatsapp/device", getWhatsAppDevice)
	webserver.ApiPOST("/whatsapp/send", postWhatsAppSend, webserver.RequireRole(webserver.RoleOperator))
}

func getWhatsAppStatus(c echo.Context) error {
	if backend.WhatsApp == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	return ok(c, backend.WhatsApp.Status())
}

// getWhatsAppQR returns the pending pairing code. The frontend renders it
// client-side.
func getWhatsAppQR(c echo.Context) error {
	if backend.WhatsApp == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	code := backend.WhatsApp.QRCode()
	return ok(c, map[string]interface{}{
		"code":   code,
		"has_qr": code != "",
	})
}

func getWhatsAppDevice(c echo.Context) error {
	var dev domain.WhatsAppDevice
	if err := GetDB(c).Order("id ASC").First(&dev).Error; err != nil {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "No device has been paired", nil)
	}
	return ok(c, dev)
}

// postWhatsAppSend sends a text message via the running client.
// Request JSON: { "to": "0812xxxx", "text": "hello" }
func postWhatsAppSend(c echo.Context) error {
	if backend.WhatsApp == nil {
		return fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	var payload struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.To) == "" || strings.TrimSpace(payload.Text) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "to and text are required", nil)
	}
	if err := backend.WhatsApp.SendText(c.Request().Context(), payload.To, payload.Text); err != nil {
		zap.L().Warn("adminapi: whatsapp send failed", zap.String("to", payload.To), zap.Error(err))
		return fail(c, http.StatusBadGateway, "WA_SEND_FAILED", "Failed to send message", err.Error())
	}
	zap.L().Info("adminapi: whatsapp message sent", zap.String("to", payload.To), zap.String("by", actor(c)))
	return ok(c, map[string]interface{}{"sent": true})
}
