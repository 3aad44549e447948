package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/ispcare/config"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/pkg/common"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	cfg := *config.DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = "test.db"
	cfg.WhatsApp.Enabled = false
	cfg.Lock.StaleAfter = time.Second

	a := NewApplication(&cfg)
	require.NoError(t, a.Init())
	t.Cleanup(a.Release)
	return a
}

func TestInitSeedsAdminAndPackages(t *testing.T) {
	a := newTestApp(t)

	var opr domain.SysOpr
	require.NoError(t, a.DB().Where("username = ?", adminUsername).First(&opr).Error)
	assert.Equal(t, domain.OprLevelAdmin, opr.Level)
	assert.Equal(t, common.Sha256HashWithSalt(adminPassword, common.GetSecretSalt()), opr.Password)

	var n int64
	a.DB().Model(&domain.Package{}).Count(&n)
	assert.EqualValues(t, len(defaultPackages), n)

	a.ensurePackages()
	a.DB().Model(&domain.Package{}).Count(&n)
	assert.EqualValues(t, len(defaultPackages), n)

	assert.NotNil(t, a.Engine())
	assert.NotNil(t, a.PhotoQueue())
	assert.NotNil(t, a.PhotoArchive())
	assert.Nil(t, a.WhatsApp())
}

func TestEnsureAdminRepairsAccount(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.DB().Model(&domain.SysOpr{}).Where("username = ?", adminUsername).
		Updates(map[string]interface{}{"password": "", "status": common.DISABLED}).Error)

	a.ensureAdmin()

	var opr domain.SysOpr
	require.NoError(t, a.DB().Where("username = ?", adminUsername).First(&opr).Error)
	assert.Equal(t, common.ENABLED, opr.Status)
	assert.NotEmpty(t, opr.Password)
}

func TestLockSweepJobFreesStaleLocks(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	acquired, err := a.Locker().Acquire(ctx, lock.TicketResource(1), time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(1100 * time.Millisecond)
	a.SchedLockSweepTask()

	locked, err := a.Locker().IsLocked(ctx, lock.TicketResource(1))
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestMessengerProxyWithoutTransport(t *testing.T) {
	m := &messengerProxy{}
	assert.ErrorIs(t, m.SendText(context.Background(), "62811", "hi"), errNoTransport)

	rec := &recordingSender{}
	m.Set(rec)
	require.NoError(t, m.SendText(context.Background(), "62811", "hi"))
	assert.Equal(t, []string{"62811:hi"}, rec.sent)
}

type recordingSender struct {
	sent []string
}

func (r *recordingSender) SendText(_ context.Context, to, text string) error {
	r.sent = append(r.sent, to+":"+text)
	return nil
}
