package qos

import (
	"context"
	"time"

	"github.com/talkincode/ispcare/internal/domain"
	"gorm.io/gorm"
)

type NasRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.NetNas, error)
}

// NasQoSRepository handles database operations for NAS QoS records
type NasQoSRepository interface {
	Create(ctx context.Context, qos *domain.NasQoS) error
	Update(ctx context.Context, qos *domain.NasQoS) error
	GetByID(ctx context.Context, id int64) (*domain.NasQoS, error)

	// GetPending retrieves records waiting to be pushed to the device
	GetPending(ctx context.Context, limit int) ([]*domain.NasQoS, error)

	// GetFailed retrieves failed records still under the retry limit
	GetFailed(ctx context.Context, limit int) ([]*domain.NasQoS, error)

	// GetExpiredBoosts retrieves synced boosts whose expiry has passed
	GetExpiredBoosts(ctx context.Context, now time.Time, limit int) ([]*domain.NasQoS, error)

	// GetActiveBoost returns the running boost of a customer, nil if none
	GetActiveBoost(ctx context.Context, customerID int64) (*domain.NasQoS, error)

	UpdateStatus(ctx context.Context, id int64, status, errorMsg string) error
	IncrementRetry(ctx context.Context, id int64) error
	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.NasQoS, int64, error)
}

type NasQoSLogRepository interface {
	Create(ctx context.Context, log *domain.NasQoSLog) error
	GetByQoSID(ctx context.Context, qosID int64) ([]*domain.NasQoSLog, error)
	DeleteOlderThan(ctx context.Context, days int) error
}

const MaxRetry = 3

type GormNasRepository struct {
	DB *gorm.DB
}

func (r *GormNasRepository) GetByID(ctx context.Context, id int64) (*domain.NetNas, error) {
	var nas domain.NetNas
	if err := r.DB.WithContext(ctx).First(&nas, id).Error; err != nil {
		return nil, err
	}
	return &nas, nil
}

// GormNasQoSRepository is the GORM implementation of NasQoSRepository
type GormNasQoSRepository struct {
	DB *gorm.DB
}

func (r *GormNasQoSRepository) Create(ctx context.Context, qos *domain.NasQoS) error {
	return r.DB.WithContext(ctx).Create(qos).Error
}

func (r *GormNasQoSRepository) Update(ctx context.Context, qos *domain.NasQoS) error {
	return r.DB.WithContext(ctx).Save(qos).Error
}

func (r *GormNasQoSRepository) GetByID(ctx context.Context, id int64) (*domain.NasQoS, error) {
	var qos domain.NasQoS
	if err := r.DB.WithContext(ctx).First(&qos, id).Error; err != nil {
		return nil, err
	}
	return &qos, nil
}

func (r *GormNasQoSRepository) GetPending(ctx context.Context, limit int) ([]*domain.NasQoS, error) {
	var qos []*domain.NasQoS
	err := r.DB.WithContext(ctx).
		Where("status = ?", domain.QoSPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&qos).Error
	return qos, err
}

func (r *GormNasQoSRepository) GetFailed(ctx context.Context, limit int) ([]*domain.NasQoS, error) {
	var qos []*domain.NasQoS
	err := r.DB.WithContext(ctx).
		Where("status = ?", domain.QoSFailed).
		Where("retry_count < ?", MaxRetry).
		Order("created_at ASC").
		Limit(limit).
		Find(&qos).Error
	return qos, err
}

func (r *GormNasQoSRepository) GetExpiredBoosts(ctx context.Context, now time.Time, limit int) ([]*domain.NasQoS, error) {
	var qos []*domain.NasQoS
	err := r.DB.WithContext(ctx).
		Where("kind = ? AND status = ?", domain.QoSKindBoost, domain.QoSSynced).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&qos).Error
	return qos, err
}

func (r *GormNasQoSRepository) GetActiveBoost(ctx context.Context, customerID int64) (*domain.NasQoS, error) {
	var qos []*domain.NasQoS
	err := r.DB.WithContext(ctx).
		Where("customer_id = ? AND kind = ?", customerID, domain.QoSKindBoost).
		Where("status IN ?", []string{domain.QoSPending, domain.QoSSynced}).
		Order("created_at DESC").
		Limit(1).
		Find(&qos).Error
	if err != nil || len(qos) == 0 {
		return nil, err
	}
	return qos[0], nil
}

func (r *GormNasQoSRepository) UpdateStatus(ctx context.Context, id int64, status, errorMsg string) error {
	return r.DB.WithContext(ctx).
		Model(&domain.NasQoS{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    status,
			"error_msg": errorMsg,
		}).Error
}

func (r *GormNasQoSRepository) IncrementRetry(ctx context.Context, id int64) error {
	return r.DB.WithContext(ctx).
		Model(&domain.NasQoS{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *GormNasQoSRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.NasQoS, int64, error) {
	var qos []*domain.NasQoS
	var total int64

	query := r.DB.WithContext(ctx).Model(&domain.NasQoS{})
	for key, value := range filter {
		if value != nil && value != "" {
			query = query.Where(key+" = ?", value)
		}
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&qos).Error
	return qos, total, err
}

type GormNasQoSLogRepository struct {
	DB *gorm.DB
}

func (r *GormNasQoSLogRepository) Create(ctx context.Context, log *domain.NasQoSLog) error {
	return r.DB.WithContext(ctx).Create(log).Error
}

func (r *GormNasQoSLogRepository) GetByQoSID(ctx context.Context, qosID int64) ([]*domain.NasQoSLog, error) {
	var logs []*domain.NasQoSLog
	err := r.DB.WithContext(ctx).
		Where("qos_id = ?", qosID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

func (r *GormNasQoSLogRepository) DeleteOlderThan(ctx context.Context, days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	return r.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.NasQoSLog{}).Error
}
