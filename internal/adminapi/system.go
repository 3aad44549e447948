package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/ispcare/internal/webserver"
	"github.com/talkincode/ispcare/pkg/metrics"
)

type lockView struct {
	ResourceID string    `json:"resource_id"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	HeldFor    string    `json:"held_for"`
}

type metricPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

func registerSystemRoutes() {
	webserver.ApiGET("/system/locks", listLocks)
	webserver.ApiGET("/system/photo-queue", photoQueueStats)
	webserver.ApiGET("/system/metrics", metricsSnapshot)
	webserver.ApiGET("/system/metrics/:name", metricSeries)
}

func listLocks(c echo.Context) error {
	if backend.Locker == nil {
		return fail(c, http.StatusServiceUnavailable, "LOCK_NOT_INITIALIZED", "Lock manager not initialized", nil)
	}
	entries, err := backend.Locker.Snapshot(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "LOCK_ERROR", "Failed to read locks", err.Error())
	}
	now := time.Now()
	views := make([]lockView, 0, len(entries))
	for _, e := range entries {
		views = append(views, lockView{
			ResourceID: e.ResourceID,
			Holder:     e.Holder,
			AcquiredAt: e.AcquiredAt,
			HeldFor:    now.Sub(e.AcquiredAt).Truncate(time.Millisecond).String(),
		})
	}
	return ok(c, views)
}

func photoQueueStats(c echo.Context) error {
	if backend.Photos == nil {
		return fail(c, http.StatusServiceUnavailable, "QUEUE_NOT_INITIALIZED", "Photo queue not initialized", nil)
	}
	return ok(c, backend.Photos.Stats())
}

func metricsSnapshot(c echo.Context) error {
	return ok(c, metrics.Snapshot())
}

// metricSeries returns stored points for one metric. from/to accept any
// layout dateparse understands and default to the last hour.
func metricSeries(c echo.Context) error {
	end := time.Now()
	start := end.Add(-time.Hour)
	if v := strings.TrimSpace(c.QueryParam("from")); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_RANGE", "Invalid from", err.Error())
		}
		start = t
	}
	if v := strings.TrimSpace(c.QueryParam("to")); v != "" {
		t, err := dateparse.ParseLocal(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_RANGE", "Invalid to", err.Error())
		}
		end = t
	}
	points, err := metrics.Query(c.Param("name"), start, end)
	if err != nil {
		return fail(c, http.StatusNotFound, "NO_DATA", "No data for metric", err.Error())
	}
	out := make([]metricPoint, 0, len(points))
	for _, p := range points {
		out = append(out, metricPoint{Timestamp: p.Timestamp, Value: p.Value})
	}
	return ok(c, out)
}
