package app

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/ispcare/config"
	"github.com/talkincode/ispcare/internal/conversation"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/internal/service"
	"github.com/talkincode/ispcare/internal/whatsapp"
	"github.com/talkincode/ispcare/pkg/common"
	"github.com/talkincode/ispcare/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	rdb       *redis.Client

	locker     *lock.Locker
	events     *service.Events
	directory  *service.Directory
	tickets    *service.TicketService
	requests   *service.RequestService
	notifier   *service.Notifier
	photoQueue *photoqueue.Queue
	archive    *photoqueue.FileStorage
	qosService *qos.NasQoSService
	engine     *conversation.Engine
	messenger  *messengerProxy
	wa         *whatsapp.Service
}

var _ AppContext = (*Application)(nil)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig, messenger: &messengerProxy{}}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Locker() *lock.Locker {
	return a.locker
}

func (a *Application) Tickets() *service.TicketService {
	return a.tickets
}

func (a *Application) Requests() *service.RequestService {
	return a.requests
}

func (a *Application) PhotoQueue() *photoqueue.Queue {
	return a.photoQueue
}

func (a *Application) PhotoArchive() *photoqueue.FileStorage {
	return a.archive
}

func (a *Application) QoS() *qos.NasQoSService {
	return a.qosService
}

func (a *Application) Engine() *conversation.Engine {
	return a.engine
}

// WhatsApp is nil when the transport is disabled.
func (a *Application) WhatsApp() *whatsapp.Service {
	return a.wa
}

// InitLogger installs the global zap logger, teeing to a rotated file when
// enabled.
func InitLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

// Init opens storage and builds every service. Background work starts in Run.
func (a *Application) Init() error {
	cfg := a.appConfig
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	if cfg.System.NodeID > 0 {
		common.SetIDNode(cfg.System.NodeID)
	}

	if err := metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if a.gormDB == nil {
		db, err := getDatabase(cfg.Database, cfg.GetDataDir())
		if err != nil {
			return err
		}
		a.gormDB = db
		zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)
	}
	if err := a.MigrateDB(false); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	a.ensureAdmin()
	a.ensurePackages()

	if err := a.initLocker(); err != nil {
		return err
	}
	a.initServices()
	if cfg.WhatsApp.Enabled {
		wa, err := whatsapp.New(a.gormDB, cfg.Database.Type)
		if err != nil {
			return fmt.Errorf("whatsapp init: %w", err)
		}
		wa.SetHandler(a.engine)
		a.wa = wa
		a.messenger.Set(wa)
	}
	return nil
}

func (a *Application) initLocker() error {
	cfg := a.appConfig
	var store lock.Store
	switch strings.ToLower(cfg.Lock.Backend) {
	case "redis":
		rdb, err := lock.NewRedisClient(context.Background(), cfg.Redis.URL)
		if err != nil {
			return err
		}
		a.rdb = rdb
		store = lock.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Lock.StaleAfter)
	default:
		store = lock.NewMemoryStore()
	}
	a.locker = lock.New(store, lock.Options{
		PollInterval:   cfg.Lock.PollInterval,
		StaleAfter:     cfg.Lock.StaleAfter,
		DefaultTimeout: cfg.Lock.AcquireTimeout,
	})
	zap.L().Info("lock manager initialized", zap.String("backend", cfg.Lock.Backend))
	return nil
}

func (a *Application) initServices() {
	cfg := a.appConfig
	a.events = service.NewEvents()
	a.directory = service.NewDirectory(a.gormDB, cfg.WhatsApp.AdminPhones)
	a.tickets = service.NewTicketService(a.gormDB, a.locker, a.events, cfg.Lock.AcquireTimeout)
	a.requests = service.NewRequestService(a.gormDB, a.locker, a.events, cfg.Lock.AcquireTimeout)

	notifier, err := service.NewNotifier(a.messenger, a.directory, cfg.WhatsApp.NotifyWorkers)
	if err != nil {
		zap.L().Error("notifier init failed", zap.Error(err))
	} else if err := notifier.Subscribe(a.events); err != nil {
		zap.L().Error("notifier subscribe failed", zap.Error(err))
	} else {
		a.notifier = notifier
	}

	a.archive = photoqueue.NewFileStorage(cfg.GetUploadDir())
	storage := &service.PhotoRecorder{
		Next:    a.archive,
		Tickets: a.tickets,
	}
	a.photoQueue = photoqueue.New(photoqueue.Config{
		CollectWindow:        cfg.Photo.CollectWindow,
		MaxBatch:             cfg.Photo.MaxBatch,
		MaxConcurrentFlushes: cfg.Photo.MaxConcurrentFlushes,
		AckDelay:             cfg.Photo.AckDelay,
		AckInterval:          cfg.Photo.AckInterval,
		SessionIdle:          cfg.Photo.SessionIdle,
		LimiterIdle:          cfg.Photo.LimiterIdle,
	}, storage, a.messenger)

	a.qosService = qos.NewNasQoSService(
		&qos.GormNasQoSRepository{DB: a.gormDB},
		&qos.GormNasQoSLogRepository{DB: a.gormDB},
		&qos.GormNasRepository{DB: a.gormDB},
		nil,
	)

	store := conversation.NewCacheStore(2 * cfg.Conversation.LongTimeout)
	a.engine = conversation.New(conversation.Config{
		ShortTimeout: cfg.Conversation.ShortTimeout,
		LongTimeout:  cfg.Conversation.LongTimeout,
	}, store, conversation.Deps{
		Directory: a.directory,
		Tickets:   a.tickets,
		Requests:  a.requests,
		Photos:    a.photoQueue,
		Network:   a.qosService,
	})
}

// Run starts the jobs and the whatsapp client, then blocks until ctx ends.
func (a *Application) Run(ctx context.Context) error {
	a.initJob()
	a.qosService.Start(ctx, a.appConfig.QoS.SyncInterval)
	if a.wa != nil {
		return a.wa.Start(ctx)
	}
	<-ctx.Done()
	return nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
	a.ensureAdmin()
	a.ensurePackages()
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.qosService != nil {
		a.qosService.Stop()
	}
	if a.photoQueue != nil {
		a.photoQueue.Close()
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
