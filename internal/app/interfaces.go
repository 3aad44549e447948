package app

import (
	"github.com/talkincode/ispcare/config"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/internal/service"
	"github.com/talkincode/ispcare/internal/whatsapp"
	"gorm.io/gorm"
)

type DBProvider interface {
	DB() *gorm.DB
}

type ConfigProvider interface {
	Config() *config.AppConfig
}

// ServiceProvider exposes what Init built. WhatsApp is nil when the
// transport is disabled.
type ServiceProvider interface {
	Locker() *lock.Locker
	Tickets() *service.TicketService
	Requests() *service.RequestService
	PhotoQueue() *photoqueue.Queue
	PhotoArchive() *photoqueue.FileStorage
	QoS() *qos.NasQoSService
	WhatsApp() *whatsapp.Service
}

// AppContext is the surface the command layer drives.
type AppContext interface {
	DBProvider
	ConfigProvider
	ServiceProvider

	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
