package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestLocker() *lock.Locker {
	return lock.New(lock.NewMemoryStore(), lock.Options{Holder: "test", PollInterval: 10 * time.Millisecond})
}

type seed struct {
	customer *domain.Customer
	tech     *domain.Technician
	base     *domain.Package
	boost    *domain.Package
	nas      *domain.NetNas
}

func seedData(t *testing.T, db *gorm.DB) seed {
	t.Helper()
	s := seed{
		nas:   &domain.NetNas{ID: 1, Name: "core", Ipaddr: "10.0.0.1", VendorCode: domain.VendorMikrotik},
		base:  &domain.Package{Name: "Home 10M", Type: domain.PackageSubscription, UpRate: 5120, DownRate: 10240, Price: 200000},
		boost: &domain.Package{Name: "Boost 50M", Type: domain.PackageSpeedBoost, UpRate: 25600, DownRate: 51200, Price: 24000},
		tech:  &domain.Technician{ID: 11, Name: "Andi", Phone: "6281200000011"},
	}
	require.NoError(t, db.Create(s.nas).Error)
	require.NoError(t, db.Create(s.base).Error)
	require.NoError(t, db.Create(s.boost).Error)
	require.NoError(t, db.Create(s.tech).Error)
	s.customer = &domain.Customer{ID: 7, Name: "Budi", Phone: "6281234567890", PppoeUser: "budi", NasId: 1, PackageId: s.base.ID}
	require.NoError(t, db.Create(s.customer).Error)
	return s
}

type recorder struct {
	mu     sync.Mutex
	ticket []TicketEvent
	req    []RequestEvent
}

func (r *recorder) onTicket(ev TicketEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticket = append(r.ticket, ev)
}

func (r *recorder) onRequest(ev RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.req = append(r.req, ev)
}

func recordEvents(t *testing.T, events *Events) *recorder {
	r := &recorder{}
	require.NoError(t, events.OnTicketCreated(r.onTicket))
	require.NoError(t, events.OnTicketStatus(r.onTicket))
	require.NoError(t, events.OnRequestCreated(r.onRequest))
	require.NoError(t, events.OnRequestDecided(r.onRequest))
	return r
}

var bg = context.Background()
