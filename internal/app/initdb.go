package app

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	adminUsername = "admin"
	adminPassword = "ispcare"
)

// ensureAdmin creates the panel admin on first start. An existing account
// whose password, level or status was cleared is put back.
func (a *Application) ensureAdmin() {
	hashed := common.Sha256HashWithSalt(adminPassword, common.GetSecretSalt())

	var opr domain.SysOpr
	err := a.gormDB.Where("username = ?", adminUsername).First(&opr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		opr = domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Username:  adminUsername,
			Password:  hashed,
			Level:     domain.OprLevelAdmin,
			Status:    common.ENABLED,
			Remark:    "created on first start",
			LastLogin: time.Now(),
		}
		if err := a.gormDB.Create(&opr).Error; err != nil {
			zap.L().Error("app: create admin failed", zap.Error(err))
			return
		}
		zap.L().Info("app: admin account created", zap.String("username", adminUsername))
		return
	}
	if err != nil {
		zap.L().Error("app: load admin failed", zap.Error(err))
		return
	}

	fix := map[string]interface{}{}
	if strings.TrimSpace(opr.Password) == "" {
		fix["password"] = hashed
	}
	if opr.Level != domain.OprLevelAdmin {
		fix["level"] = domain.OprLevelAdmin
	}
	if opr.Status != common.ENABLED {
		fix["status"] = common.ENABLED
	}
	if len(fix) == 0 {
		return
	}
	fields := make([]string, 0, len(fix))
	for k := range fix {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	fix["updated_at"] = time.Now()
	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", opr.ID).Updates(fix).Error; err != nil {
		zap.L().Error("app: repair admin failed", zap.Error(err))
		return
	}
	zap.L().Warn("app: admin account repaired", zap.String("username", adminUsername), zap.Strings("fields", fields))
}

var defaultPackages = []domain.Package{
	{Name: "Home 10M", Type: domain.PackageSubscription, UpRate: 5120, DownRate: 10240, Price: 166500, Sort: 1},
	{Name: "Home 20M", Type: domain.PackageSubscription, UpRate: 10240, DownRate: 20480, Price: 222000, Sort: 2},
	{Name: "Boost 50M", Type: domain.PackageSpeedBoost, UpRate: 25600, DownRate: 51200, Price: 15000, Sort: 10},
	{Name: "Boost 100M", Type: domain.PackageSpeedBoost, UpRate: 51200, DownRate: 102400, Price: 25000, Sort: 11},
}

// ensurePackages seeds the catalogue on an empty database.
func (a *Application) ensurePackages() {
	var count int64
	if err := a.gormDB.Model(&domain.Package{}).Count(&count).Error; err != nil {
		zap.L().Error("app: count packages failed", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}
	now := time.Now()
	for _, p := range defaultPackages {
		p.Status = common.ENABLED
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := a.gormDB.Create(&p).Error; err != nil {
			zap.L().Error("app: seed package failed", zap.String("name", p.Name), zap.Error(err))
		}
	}
	zap.L().Info("app: default packages seeded", zap.Int("count", len(defaultPackages)))
}
