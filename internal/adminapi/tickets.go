package adminapi

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/internal/service"
	"github.com/talkincode/ispcare/internal/webserver"
	"go.uber.org/zap"
)

type ticketStatusPayload struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func registerTicketRoutes() {
	webserver.ApiGET("/tickets", listTickets)
	webserver.ApiGET("/tickets/export", exportTickets)
	webserver.ApiPOST("/tickets/export/send", sendTicketExport, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiGET("/tickets/:id", getTicket)
	webserver.ApiGET("/tickets/:id/photos", listTicketPhotos)
	webserver.ApiPOST("/tickets/:id/photos/send", sendTicketPhotos, webserver.RequireRole(webserver.RoleOperator))
	webserver.ApiPUT("/tickets/:id/status", updateTicketStatus, webserver.RequireRole(webserver.RoleOperator))
}

// ticketFilter reads list filters. since accepts any layout dateparse
// understands ("2024-05-01", "May 1 2024", unix seconds).
func ticketFilter(c echo.Context) (service.TicketFilter, error) {
	page, pageSize := parsePagination(c)
	f := service.TicketFilter{
		Status:   strings.TrimSpace(c.QueryParam("status")),
		Keyword:  strings.TrimSpace(c.QueryParam("q")),
		Page:     page,
		PageSize: pageSize,
	}
	if v := c.QueryParam("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid customer_id %q", v)
		}
		f.CustomerId = id
	}
	if v := c.QueryParam("technician_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid technician_id %q", v)
		}
		f.TechnicianId = id
	}
	if v := strings.TrimSpace(c.QueryParam("since")); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: %w", v, err)
		}
		f.Since = t
	}
	return f, nil
}

func listTickets(c echo.Context) error {
	f, err := ticketFilter(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid ticket filter", err.Error())
	}
	rows, total, err := backend.Tickets.Query(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	return paged(c, rows, total, f.Page, f.PageSize)
}

// ticketCSV renders every ticket matching the request filter.
func ticketCSV(c echo.Context) ([]byte, string, error) {
	f, err := ticketFilter(c)
	if err != nil {
		return nil, "", fail(c, http.StatusBadRequest, "INVALID_FILTER", "Invalid ticket filter", err.Error())
	}
	f.Page, f.PageSize = 1, 10000
	rows, _, err := backend.Tickets.Query(c.Request().Context(), f)
	if err != nil {
		return nil, "", fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query tickets", err.Error())
	}
	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, "", fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to encode tickets", err.Error())
	}
	return data, fmt.Sprintf("tickets-%s.csv", time.Now().Format("20060102-150405")), nil
}

func exportTickets(c echo.Context) error {
	data, name, err := ticketCSV(c)
	if data == nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}

type sendPayload struct {
	To string `json:"to"`
}

func bindRecipient(c echo.Context) (string, error) {
	if backend.WhatsApp == nil {
		return "", fail(c, http.StatusServiceUnavailable, "WA_NOT_INITIALIZED", "WhatsApp service not initialized", nil)
	}
	var payload sendPayload
	if err := c.Bind(&payload); err != nil {
		return "", fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	to := strings.TrimSpace(payload.To)
	if to == "" {
		return "", fail(c, http.StatusBadRequest, "MISSING_FIELDS", "to is required", nil)
	}
	return to, nil
}

// sendTicketExport delivers the CSV export as a WhatsApp document.
// Filters are the same query parameters as GET /tickets/export.
func sendTicketExport(c echo.Context) error {
	to, err := bindRecipient(c)
	if to == "" {
		return err
	}
	data, name, err := ticketCSV(c)
	if data == nil {
		return err
	}
	if err := backend.WhatsApp.SendDocument(c.Request().Context(), to, data, "text/csv", name); err != nil {
		zap.L().Warn("adminapi: send ticket export failed", zap.String("to", to), zap.Error(err))
		return fail(c, http.StatusBadGateway, "WA_SEND_FAILED", "Failed to send export", err.Error())
	}
	zap.L().Info("adminapi: ticket export sent", zap.String("to", to), zap.String("file", name), zap.String("by", actor(c)))
	return ok(c, map[string]interface{}{"sent": true, "filename": name, "size": len(data)})
}

func getTicket(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	t, err := backend.Tickets.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, t)
}

// listTicketPhotos returns the recorded photos together with the
// metadata sidecars kept beside the files.
func listTicketPhotos(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	photos, err := backend.Tickets.Photos(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	archive := []photoqueue.Metadata{}
	if backend.Archive != nil {
		metas, err := backend.Archive.Metadata(strconv.FormatInt(id, 10))
		if err != nil {
			zap.L().Warn("adminapi: read photo metadata failed", zap.Int64("ticket", id), zap.Error(err))
		} else {
			archive = metas
		}
	}
	return ok(c, map[string]interface{}{"items": photos, "archive": archive})
}

// sendTicketPhotos forwards a ticket's documentation photos over WhatsApp.
func sendTicketPhotos(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	to, err := bindRecipient(c)
	if to == "" {
		return err
	}
	photos, err := backend.Tickets.Photos(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if len(photos) == 0 {
		return fail(c, http.StatusNotFound, "NO_PHOTOS", "Ticket has no photos", nil)
	}
	sent, failed := 0, 0
	for i, p := range photos {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			failed++
			zap.L().Warn("adminapi: read ticket photo failed", zap.Int64("ticket", id), zap.String("path", p.Path), zap.Error(err))
			continue
		}
		caption := fmt.Sprintf("Tiket #%d foto %d/%d", id, i+1, len(photos))
		if err := backend.WhatsApp.SendImage(c.Request().Context(), to, data, p.MimeType, caption); err != nil {
			zap.L().Warn("adminapi: send ticket photo failed", zap.Int64("ticket", id), zap.String("to", to), zap.Error(err))
			return fail(c, http.StatusBadGateway, "WA_SEND_FAILED", "Failed to send photos", map[string]int{"sent": sent})
		}
		sent++
	}
	zap.L().Info("adminapi: ticket photos sent", zap.Int64("ticket", id), zap.String("to", to), zap.Int("sent", sent), zap.String("by", actor(c)))
	return ok(c, map[string]interface{}{"sent": sent, "missing": failed})
}

func updateTicketStatus(c echo.Context) error {
	id, valid := parseID(c)
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid ticket ID", nil)
	}
	var payload ticketStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse status", err.Error())
	}
	t, err := backend.Tickets.SetStatus(c.Request().Context(), id, strings.TrimSpace(payload.Status), payload.Notes)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, t)
}
