package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system settings
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
	// NodeID separates generated ids when several instances share a database.
	NodeID int64 `yaml:"node_id"`
}

// WebConfig admin api settings
type WebConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DBConfig database settings, postgres or sqlite
type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// LogConfig logging settings
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// WhatsAppConfig transport settings
type WhatsAppConfig struct {
	Enabled bool `yaml:"enabled"`
	// AdminPhones receive speed boost requests and escalations.
	AdminPhones   []string `yaml:"admin_phones"`
	NotifyWorkers int      `yaml:"notify_workers"`
}

// QoSConfig speed boost queue sync settings
type QoSConfig struct {
	SyncInterval   time.Duration `yaml:"sync_interval"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

// RedisConfig is only used when the lock backend is redis.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// LockConfig resource lock settings
type LockConfig struct {
	Backend        string        `yaml:"backend"` // memory | redis
	PollInterval   time.Duration `yaml:"poll_interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// PhotoConfig photo upload queue settings
type PhotoConfig struct {
	UploadDir            string        `yaml:"upload_dir"`
	CollectWindow        time.Duration `yaml:"collect_window"`
	MaxBatch             int           `yaml:"max_batch"`
	MaxConcurrentFlushes int           `yaml:"max_concurrent_flushes"`
	AckDelay             time.Duration `yaml:"ack_delay"`
	AckInterval          time.Duration `yaml:"ack_interval"`
	SessionIdle          time.Duration `yaml:"session_idle"`
	LimiterIdle          time.Duration `yaml:"limiter_idle"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
}

// ConversationConfig step machine timeouts
type ConversationConfig struct {
	ShortTimeout time.Duration `yaml:"short_timeout"`
	LongTimeout  time.Duration `yaml:"long_timeout"`
}

type AppConfig struct {
	System       SysConfig          `yaml:"system"`
	Web          WebConfig          `yaml:"web"`
	Database     DBConfig           `yaml:"database"`
	Logger       LogConfig          `yaml:"logger"`
	WhatsApp     WhatsAppConfig     `yaml:"whatsapp"`
	Redis        RedisConfig        `yaml:"redis"`
	Lock         LockConfig         `yaml:"lock"`
	Photo        PhotoConfig        `yaml:"photo"`
	Conversation ConversationConfig `yaml:"conversation"`
	QoS          QoSConfig          `yaml:"qos"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetUploadDir() string {
	if filepath.IsAbs(c.Photo.UploadDir) {
		return c.Photo.UploadDir
	}
	return filepath.Join(c.System.Workdir, c.Photo.UploadDir)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "ispcare",
		Location: "Asia/Jakarta",
		Workdir:  "/var/ispcare",
		Debug:    true,
	},
	Web: WebConfig{
		Host:     "0.0.0.0",
		Port:     1816,
		Secret:   "9b6de5cc-0731-4bf1-ispcare-0f568ac9da37",
		TokenTTL: 12 * time.Hour,
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "ispcare.db",
		User:     "postgres",
		Passwd:   "myroot",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/ispcare/logs/ispcare.log",
	},
	WhatsApp: WhatsAppConfig{
		Enabled:       true,
		NotifyWorkers: 8,
	},
	Redis: RedisConfig{
		Prefix: "ispcare:lock:",
	},
	Lock: LockConfig{
		Backend:        "memory",
		PollInterval:   50 * time.Millisecond,
		StaleAfter:     30 * time.Second,
		SweepInterval:  10 * time.Second,
		AcquireTimeout: 5 * time.Second,
	},
	Photo: PhotoConfig{
		UploadDir:            "uploads",
		CollectWindow:        2 * time.Second,
		MaxBatch:             10,
		MaxConcurrentFlushes: 3,
		AckDelay:             500 * time.Millisecond,
		AckInterval:          1500 * time.Millisecond,
		SessionIdle:          30 * time.Minute,
		LimiterIdle:          time.Minute,
		CleanupInterval:      time.Minute,
	},
	Conversation: ConversationConfig{
		ShortTimeout: 10 * time.Minute,
		LongTimeout:  30 * time.Minute,
	},
	QoS: QoSConfig{
		SyncInterval:   time.Minute,
		ExpiryInterval: time.Minute,
	},
}

// LoadConfig reads the yaml file (if any) over the defaults and applies
// ISPCARE_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := *DefaultAppConfig
	if cfile == "" {
		cfile = "ispcare.yml"
	}
	if data, err := os.ReadFile(cfile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", cfile, err)
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the coordination constants, which must be positive.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Lock.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported lock backend %q", c.Lock.Backend)
	}
	if strings.EqualFold(c.Lock.Backend, "redis") && c.Redis.URL == "" {
		return fmt.Errorf("redis lock backend requires redis.url")
	}
	if c.Lock.PollInterval <= 0 || c.Lock.StaleAfter <= 0 || c.Lock.SweepInterval <= 0 {
		return fmt.Errorf("lock intervals must be positive")
	}
	if c.Photo.MaxBatch <= 0 || c.Photo.MaxConcurrentFlushes <= 0 {
		return fmt.Errorf("photo max_batch and max_concurrent_flushes must be positive")
	}
	if c.QoS.SyncInterval <= 0 || c.QoS.ExpiryInterval <= 0 {
		return fmt.Errorf("qos intervals must be positive")
	}
	if c.Photo.CollectWindow <= 0 {
		return fmt.Errorf("photo collect_window must be positive")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = cast.ToInt(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = cast.ToBool(v)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if d, err := cast.ToDurationE(v); err == nil {
				*dst = d
			}
		}
	}

	setString("ISPCARE_WORKDIR", &cfg.System.Workdir)
	setString("ISPCARE_LOCATION", &cfg.System.Location)
	setBool("ISPCARE_DEBUG", &cfg.System.Debug)
	if v, ok := lookup("ISPCARE_NODE_ID"); ok && v != "" {
		cfg.System.NodeID = cast.ToInt64(v)
	}
	setString("ISPCARE_WEB_HOST", &cfg.Web.Host)
	setInt("ISPCARE_WEB_PORT", &cfg.Web.Port)
	setString("ISPCARE_WEB_SECRET", &cfg.Web.Secret)
	setString("ISPCARE_DB_TYPE", &cfg.Database.Type)
	setString("ISPCARE_DB_HOST", &cfg.Database.Host)
	setInt("ISPCARE_DB_PORT", &cfg.Database.Port)
	setString("ISPCARE_DB_NAME", &cfg.Database.Name)
	setString("ISPCARE_DB_USER", &cfg.Database.User)
	setString("ISPCARE_DB_PWD", &cfg.Database.Passwd)
	setBool("ISPCARE_DB_DEBUG", &cfg.Database.Debug)
	setString("ISPCARE_LOGGER_MODE", &cfg.Logger.Mode)
	setBool("ISPCARE_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setBool("ISPCARE_WHATSAPP_ENABLED", &cfg.WhatsApp.Enabled)
	if v, ok := lookup("ISPCARE_WHATSAPP_ADMIN_PHONES"); ok && v != "" {
		cfg.WhatsApp.AdminPhones = strings.Split(v, ",")
	}
	setString("ISPCARE_REDIS_URL", &cfg.Redis.URL)
	setString("ISPCARE_LOCK_BACKEND", &cfg.Lock.Backend)
	setDuration("ISPCARE_LOCK_STALE_AFTER", &cfg.Lock.StaleAfter)
	setDuration("ISPCARE_LOCK_SWEEP_INTERVAL", &cfg.Lock.SweepInterval)
	setString("ISPCARE_PHOTO_UPLOAD_DIR", &cfg.Photo.UploadDir)
	setDuration("ISPCARE_PHOTO_COLLECT_WINDOW", &cfg.Photo.CollectWindow)
	setInt("ISPCARE_PHOTO_MAX_BATCH", &cfg.Photo.MaxBatch)
	setDuration("ISPCARE_QOS_SYNC_INTERVAL", &cfg.QoS.SyncInterval)
}
