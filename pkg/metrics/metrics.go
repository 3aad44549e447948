package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"go.uber.org/zap"
)

// Metric names shared by the coordination layer.
const (
	LockAcquired       = "lock_acquired"
	LockTimeout        = "lock_timeout"
	LockSwept          = "lock_swept"
	PhotoBatchFlushed  = "photo_batch_flushed"
	PhotoSaved         = "photo_saved"
	PhotoFailed        = "photo_failed"
	ConversationExpire = "conversation_expired"
	NotifyFailed       = "notify_failed"
)

var (
	storage tstorage.Storage
	values  = make(map[string]int64)
	mu      sync.RWMutex
)

// InitMetrics opens the time series storage under <workdir>/data/metrics.
func InitMetrics(workdir string) error {
	path := filepath.Join(workdir, "data", "metrics")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(path),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithPartitionDuration(time.Hour),
		tstorage.WithRetention(7*24*time.Hour),
	)
	if err != nil {
		return err
	}
	mu.Lock()
	storage = s
	mu.Unlock()
	return nil
}

// SetGauge records the current value of a gauge.
func SetGauge(name string, value int64) {
	mu.Lock()
	values[name] = value
	s := storage
	mu.Unlock()
	insert(s, name, value)
}

// Incr adds n to a counter and records the running total.
func Incr(name string, n int64) {
	mu.Lock()
	values[name] += n
	v := values[name]
	s := storage
	mu.Unlock()
	insert(s, name, v)
}

// Get returns the last value recorded for name.
func Get(name string) int64 {
	mu.RLock()
	defer mu.RUnlock()
	return values[name]
}

// Snapshot copies all current values.
func Snapshot() map[string]int64 {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]int64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Query returns stored points for name between start and end.
func Query(name string, start, end time.Time) ([]*tstorage.DataPoint, error) {
	mu.RLock()
	s := storage
	mu.RUnlock()
	if s == nil {
		return nil, nil
	}
	points, err := s.Select(name, nil, start.Unix(), end.Unix())
	if err == tstorage.ErrNoDataPoints {
		return nil, nil
	}
	return points, err
}

func insert(s tstorage.Storage, name string, value int64) {
	if s == nil {
		return
	}
	err := s.InsertRows([]tstorage.Row{{
		Metric:    name,
		DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
	}})
	if err != nil {
		zap.L().Debug("metrics: insert failed", zap.String("metric", name), zap.Error(err))
	}
}

func Close() error {
	mu.Lock()
	s := storage
	storage = nil
	mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
