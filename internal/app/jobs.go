package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/pkg/metrics"
	"go.uber.org/zap"
)

const qosLogRetentionDays = 90

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func (a *Application) initJob() {
	cfg := a.appConfig
	a.sched = cron.New(cron.WithLocation(time.Local), cron.WithParser(cronParser))

	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{every(cfg.Lock.SweepInterval), "lock_sweep", a.SchedLockSweepTask},
		{every(cfg.Photo.CleanupInterval), "photo_cleanup", a.SchedPhotoCleanupTask},
		{every(cfg.QoS.ExpiryInterval), "boost_expiry", a.SchedBoostExpiryTask},
		{"@every 30s", "system_monitor", func() {
			go a.SchedSystemMonitorTask()
			go a.SchedProcessMonitorTask()
		}},
		{"@daily", "oprlog_cleanup", a.SchedClearExpireData},
	}
	for _, j := range jobs {
		if _, err := a.sched.AddFunc(j.spec, j.fn); err != nil {
			zap.S().Errorf("init job %s error %s", j.name, err.Error())
		}
	}
	a.sched.Start()
}

func recoverJob(name string) {
	if err := recover(); err != nil {
		zap.L().Error("job panic", zap.String("job", name), zap.Any("panic", err))
	}
}

// SchedLockSweepTask frees locks whose holder died without releasing.
func (a *Application) SchedLockSweepTask() {
	defer recoverJob("lock_sweep")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ids, err := a.locker.Sweep(ctx)
	if err != nil {
		zap.L().Warn("lock sweep failed", zap.Error(err))
		return
	}
	if len(ids) > 0 {
		metrics.Incr(metrics.LockSwept, int64(len(ids)))
		zap.L().Warn("swept stale locks", zap.Strings("resources", ids))
	}
}

func (a *Application) SchedPhotoCleanupTask() {
	defer recoverJob("photo_cleanup")
	if n := a.photoQueue.CleanupIdle(time.Now()); n > 0 {
		zap.L().Debug("photo queue idle state removed", zap.Int("count", n))
	}
}

// SchedBoostExpiryTask reverts speed boosts past their expiry.
func (a *Application) SchedBoostExpiryTask() {
	defer recoverJob("boost_expiry")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := a.qosService.ExpireBoosts(ctx, time.Now())
	if err != nil {
		zap.L().Error("boost expiry failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("speed boosts reverted", zap.Int("count", n))
	}
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer recoverJob("system_monitor")

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // percentage * 100
	}
	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}

	if a.photoQueue != nil {
		st := a.photoQueue.Stats()
		metrics.SetGauge("photo_pending", int64(st.PendingPhotos))
		metrics.SetGauge("photo_sessions", int64(st.Sessions))
	}
	if a.locker != nil {
		if entries, err := a.locker.Snapshot(context.Background()); err == nil {
			metrics.SetGauge("locks_held", int64(len(entries)))
		}
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer recoverJob("process_monitor")

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err != nil {
		return
	}
	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("ispcare_cpuuse", int64(cpuuse*100))
	}
	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("ispcare_memuse", int64(meminfo.RSS/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

// SchedClearExpireData trims the operator audit log to one year and the
// queue sync log to 90 days.
func (a *Application) SchedClearExpireData() {
	defer recoverJob("expire_cleanup")
	a.gormDB.
		Where("opt_time < ? ", time.Now().Add(-time.Hour*24*365)).
		Delete(&domain.SysOprLog{})
	logs := &qos.GormNasQoSLogRepository{DB: a.gormDB}
	if err := logs.DeleteOlderThan(context.Background(), qosLogRetentionDays); err != nil {
		zap.L().Warn("jobs: qos log cleanup failed", zap.Error(err))
	}
}
