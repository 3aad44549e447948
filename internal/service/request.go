package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/qos"
	"github.com/talkincode/ispcare/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyProcessed is returned by Decide for a request that is no longer
// pending.
var ErrAlreadyProcessed = errors.New("request already processed")

// RequestService handles customer requests waiting for an admin decision.
type RequestService struct {
	db          *gorm.DB
	locker      *lock.Locker
	events      *Events
	lockTimeout time.Duration
	now         func() time.Time
}

func NewRequestService(db *gorm.DB, locker *lock.Locker, events *Events, lockTimeout time.Duration) *RequestService {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &RequestService{db: db, locker: locker, events: events, lockTimeout: lockTimeout, now: time.Now}
}

// BoostPackages enabled speed boost offers in display order.
func (s *RequestService) BoostPackages(ctx context.Context) ([]domain.Package, error) {
	var ps []domain.Package
	err := s.db.WithContext(ctx).
		Where("type = ? AND status <> ?", domain.PackageSpeedBoost, common.DISABLED).
		Order("sort ASC, id ASC").
		Find(&ps).Error
	return ps, err
}

// CreateSpeedBoost files a pending boost request. The customer must be bound
// to a NAS, a PPPoE user and a base package so the boost can be applied and
// later reverted.
func (s *RequestService) CreateSpeedBoost(ctx context.Context, customer *domain.Customer, pkg *domain.Package, hours int) (*domain.CustomerRequest, error) {
	switch {
	case customer == nil || pkg == nil:
		return nil, fmt.Errorf("%w: customer and package are required", ErrValidation)
	case pkg.Type != domain.PackageSpeedBoost:
		return nil, fmt.Errorf("%w: package %d is not a speed boost", ErrValidation, pkg.ID)
	case hours <= 0:
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	case customer.NasId == 0 || customer.PppoeUser == "" || customer.PackageId == 0:
		return nil, fmt.Errorf("%w: customer %d has no active connection", ErrValidation, customer.ID)
	}
	r := &domain.CustomerRequest{
		CustomerId:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		Type:          domain.RequestSpeedBoost,
		PackageId:     pkg.ID,
		PackageName:   pkg.Name,
		DurationHours: hours,
		Amount:        BoostPrice(pkg, hours),
		Status:        domain.RequestPending,
	}
	return s.create(ctx, r)
}

// CreatePayment records a payment confirmation sent by a customer.
func (s *RequestService) CreatePayment(ctx context.Context, customer *domain.Customer, amount float64, note string) (*domain.CustomerRequest, error) {
	if customer == nil {
		return nil, fmt.Errorf("%w: customer is required", ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	r := &domain.CustomerRequest{
		CustomerId:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		Type:          domain.RequestPayment,
		Amount:        amount,
		Note:          note,
		Status:        domain.RequestPending,
	}
	return s.create(ctx, r)
}

func (s *RequestService) create(ctx context.Context, r *domain.CustomerRequest) (*domain.CustomerRequest, error) {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	zap.L().Info("request: created",
		zap.Int64("request", r.ID),
		zap.String("type", r.Type),
		zap.String("customer", r.CustomerPhone))
	s.events.Publish(TopicRequestCreated, RequestEvent{Request: *r})
	return r, nil
}

// BoostPrice is the day price prorated over hours.
func BoostPrice(pkg *domain.Package, hours int) float64 {
	return pkg.Price * float64(hours) / 24
}

func (s *RequestService) Get(ctx context.Context, id int64) (*domain.CustomerRequest, error) {
	return getRequest(s.db.WithContext(ctx), id)
}

func getRequest(db *gorm.DB, id int64) (*domain.CustomerRequest, error) {
	var r domain.CustomerRequest
	if err := db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &r, nil
}

func (s *RequestService) ListPending(ctx context.Context, limit int) ([]domain.CustomerRequest, error) {
	var rs []domain.CustomerRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.RequestPending).
		Order("id ASC").
		Limit(limit).
		Find(&rs).Error
	return rs, err
}

func (s *RequestService) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.CustomerRequest, error) {
	var rs []domain.CustomerRequest
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Limit(limit).
		Find(&rs).Error
	return rs, err
}

// List pages requests, optionally filtered by status and type.
func (s *RequestService) List(ctx context.Context, status, typ string, page, pageSize int) ([]domain.CustomerRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.CustomerRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if typ != "" {
		query = query.Where("type = ?", typ)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	var rs []domain.CustomerRequest
	err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rs).Error
	return rs, total, err
}

// Decide approves or rejects a pending request. The row is re-read under the
// lock "request-<id>" so two admins racing on the same request produce one
// decision and one ErrAlreadyProcessed.
func (s *RequestService) Decide(ctx context.Context, id int64, approve bool, actor string) (*domain.CustomerRequest, error) {
	var decided *domain.CustomerRequest
	err := s.locker.WithLock(ctx, lock.RequestResource(id), s.lockTimeout, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, err := getRequest(tx, id)
			if err != nil {
				return err
			}
			if r.Status != domain.RequestPending {
				return fmt.Errorf("%w: request %d is %s", ErrAlreadyProcessed, id, r.Status)
			}
			now := s.now()
			r.DecidedBy = actor
			r.DecidedAt = &now
			r.Status = domain.RequestRejected
			if approve {
				r.Status = domain.RequestApproved
				if r.Type == domain.RequestSpeedBoost {
					if err := s.scheduleBoost(tx, r, now); err != nil {
						return err
					}
				}
			}
			if err := tx.Save(r).Error; err != nil {
				return fmt.Errorf("save request: %w", err)
			}
			if err := tx.Create(&domain.SysOprLog{
				ID:        common.UUIDint64(),
				OprName:   actor,
				OptAction: "request_" + r.Status,
				OptDesc:   fmt.Sprintf("request %d (%s) for %s", r.ID, r.Type, r.CustomerPhone),
				OptTime:   now,
			}).Error; err != nil {
				return fmt.Errorf("write operator log: %w", err)
			}
			decided = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("request: decided",
		zap.Int64("request", id),
		zap.String("status", decided.Status),
		zap.String("actor", actor))
	s.events.Publish(TopicRequestDecided, RequestEvent{Request: *decided})
	return decided, nil
}

// scheduleBoost queues the QoS record the sync loop applies to the NAS. A
// boost still active for the customer is superseded so its expiry does not
// revert the new one.
func (s *RequestService) scheduleBoost(tx *gorm.DB, r *domain.CustomerRequest, now time.Time) error {
	var (
		customer    domain.Customer
		nas         domain.NetNas
		boost, base domain.Package
	)
	if err := tx.First(&customer, r.CustomerId).Error; err != nil {
		return fmt.Errorf("load customer %d: %w", r.CustomerId, err)
	}
	if err := tx.First(&nas, customer.NasId).Error; err != nil {
		return fmt.Errorf("%w: nas for customer %d: %v", ErrValidation, customer.ID, err)
	}
	if err := tx.First(&boost, r.PackageId).Error; err != nil {
		return fmt.Errorf("%w: boost package %d: %v", ErrValidation, r.PackageId, err)
	}
	if err := tx.First(&base, customer.PackageId).Error; err != nil {
		return fmt.Errorf("%w: base package %d: %v", ErrValidation, customer.PackageId, err)
	}

	repo := &qos.GormNasQoSRepository{DB: tx}
	active, err := repo.GetActiveBoost(tx.Statement.Context, customer.ID)
	if err != nil {
		return err
	}
	if active != nil {
		if err := repo.UpdateStatus(tx.Statement.Context, active.ID, domain.QoSReverted, fmt.Sprintf("superseded by request %d", r.ID)); err != nil {
			return err
		}
	}
	row := qos.NewBoost(&customer, &nas, &boost, &base, r.ID, now.Add(time.Duration(r.DurationHours)*time.Hour))
	if err := repo.Create(tx.Statement.Context, row); err != nil {
		return fmt.Errorf("create boost: %w", err)
	}
	return nil
}
