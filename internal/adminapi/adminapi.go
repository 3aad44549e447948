package adminapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/internal/service"
	"github.com/talkincode/ispcare/internal/whatsapp"
	"gorm.io/gorm"
)

type PhotoQueue interface {
	Stats() photoqueue.Stats
}

type WhatsApp interface {
	Status() whatsapp.Status
	QRCode() string
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error
	SendDocument(ctx context.Context, to string, data []byte, mimeType, fileName string) error
}

// PhotoArchive reads the metadata sidecars written next to stored photos.
type PhotoArchive interface {
	Metadata(ticketID string) ([]photoqueue.Metadata, error)
}

type Network interface {
	SyncPending(ctx context.Context) int
	RestartSession(ctx context.Context, nasID int64, user string) (int, error)
}

// Backend is everything the handlers reach into. Nil optional members turn
// their endpoints into 503 responses.
type Backend struct {
	DB       *gorm.DB
	Tickets  *service.TicketService
	Requests *service.RequestService
	Locker   *lock.Locker
	Photos   PhotoQueue
	Archive  PhotoArchive
	WhatsApp WhatsApp
	Network  Network
}

var backend *Backend

// Init registers every admin route on the process webserver.
func Init(b *Backend) {
	backend = b
	registerAuthRoutes()
	registerRequestRoutes()
	registerTicketRoutes()
	registerPackageRoutes()
	registerSubscriberRoutes()
	registerNasRoutes()
	registerQoSRoutes()
	registerSystemRoutes()
	registerWhatsAppRoutes()
}

func GetDB(c echo.Context) *gorm.DB {
	return backend.DB.WithContext(c.Request().Context())
}

type pageResult struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": "OK",
		"data": data,
	})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	return c.JSON(status, body)
}

func paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return ok(c, pageResult{Items: rows, Total: total, Page: page, PageSize: pageSize})
}

func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.QueryParam("perPage"))
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 20
	}
	return page, pageSize
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
