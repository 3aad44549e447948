package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Photo.CollectWindow)
	assert.Equal(t, 10, cfg.Photo.MaxBatch)
	assert.Equal(t, 3, cfg.Photo.MaxConcurrentFlushes)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Lock.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Lock.SweepInterval)
}

func TestLoadConfigYamlOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ispcare.yml")
	data := []byte(`
system:
  workdir: /tmp/ispcare
lock:
  backend: memory
  stale_after: 45s
photo:
  collect_window: 3s
  max_batch: 5
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ispcare", cfg.System.Workdir)
	assert.Equal(t, 45*time.Second, cfg.Lock.StaleAfter)
	assert.Equal(t, 3*time.Second, cfg.Photo.CollectWindow)
	assert.Equal(t, 5, cfg.Photo.MaxBatch)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Lock.SweepInterval)
	assert.Equal(t, "/tmp/ispcare/uploads", cfg.GetUploadDir())
}

func TestApplyEnv(t *testing.T) {
	cfg := *DefaultAppConfig
	env := map[string]string{
		"ISPCARE_WEB_PORT":              "9000",
		"ISPCARE_LOCK_BACKEND":          "redis",
		"ISPCARE_REDIS_URL":             "redis://localhost:6379/0",
		"ISPCARE_PHOTO_COLLECT_WINDOW":  "1500ms",
		"ISPCARE_WHATSAPP_ADMIN_PHONES": "6281100,6281200",
		"ISPCARE_NODE_ID":               "7",
	}
	applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, 1500*time.Millisecond, cfg.Photo.CollectWindow)
	assert.Equal(t, []string{"6281100", "6281200"}, cfg.WhatsApp.AdminPhones)
	assert.EqualValues(t, 7, cfg.System.NodeID)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsRedisWithoutURL(t *testing.T) {
	cfg := *DefaultAppConfig
	cfg.Lock.Backend = "redis"
	cfg.Redis.URL = ""
	assert.Error(t, cfg.Validate())

	cfg.Lock.Backend = "etcd"
	assert.Error(t, cfg.Validate())
}
