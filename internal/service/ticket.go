package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid ticket status transition")
)

// allowed ticket status moves
var ticketTransitions = map[string][]string{
	domain.TicketNew:        {domain.TicketInProgress, domain.TicketCancelled},
	domain.TicketInProgress: {domain.TicketResolved, domain.TicketCancelled},
}

func canMove(from, to string) bool {
	for _, s := range ticketTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TicketFilter struct {
	Status       string
	CustomerId   int64
	TechnicianId int64
	Since        time.Time
	Keyword      string
	Page         int
	PageSize     int
}

// TicketService owns ticket status changes. Changes to one ticket are
// serialized through the resource lock "ticket-<id>".
type TicketService struct {
	db          *gorm.DB
	locker      *lock.Locker
	events      *Events
	lockTimeout time.Duration
	now         func() time.Time
}

func NewTicketService(db *gorm.DB, locker *lock.Locker, events *Events, lockTimeout time.Duration) *TicketService {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &TicketService{db: db, locker: locker, events: events, lockTimeout: lockTimeout, now: time.Now}
}

func (s *TicketService) Create(ctx context.Context, customer *domain.Customer, category, description string) (*domain.Ticket, error) {
	if customer == nil {
		return nil, fmt.Errorf("%w: customer is required", ErrValidation)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	t := &domain.Ticket{
		CustomerId:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		Category:      category,
		Description:   description,
		Status:        domain.TicketNew,
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	zap.L().Info("ticket: created", zap.Int64("ticket", t.ID), zap.String("customer", customer.Phone), zap.String("category", category))
	s.events.Publish(TopicTicketCreated, TicketEvent{Ticket: *t})
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	return getTicket(s.db.WithContext(ctx), id)
}

func getTicket(db *gorm.DB, id int64) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ticket %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	var ts []domain.Ticket
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{domain.TicketNew, domain.TicketInProgress}).
		Order("id ASC").
		Find(&ts).Error
	return ts, err
}

func (s *TicketService) ListByTechnician(ctx context.Context, technicianID int64) ([]domain.Ticket, error) {
	var ts []domain.Ticket
	err := s.db.WithContext(ctx).
		Where("technician_id = ? AND status = ?", technicianID, domain.TicketInProgress).
		Order("id ASC").
		Find(&ts).Error
	return ts, err
}

func (s *TicketService) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Ticket, error) {
	var ts []domain.Ticket
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Limit(limit).
		Find(&ts).Error
	return ts, err
}

// Query pages tickets for the admin panel.
func (s *TicketService) Query(ctx context.Context, f TicketFilter) ([]domain.Ticket, int64, error) {
	query := s.db.WithContext(ctx).Model(&domain.Ticket{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.CustomerId > 0 {
		query = query.Where("customer_id = ?", f.CustomerId)
	}
	if f.TechnicianId > 0 {
		query = query.Where("technician_id = ?", f.TechnicianId)
	}
	if !f.Since.IsZero() {
		query = query.Where("created_at >= ?", f.Since)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + kw + "%"
		query = query.Where("customer_name LIKE ? OR customer_phone LIKE ? OR description LIKE ?", like, like, like)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}
	var ts []domain.Ticket
	err := query.Order("id DESC").Find(&ts).Error
	return ts, total, err
}

// MarkInProgress assigns the ticket to tech. A ticket already taken by
// another technician is an invalid transition.
func (s *TicketService) MarkInProgress(ctx context.Context, id int64, tech *domain.Technician) (*domain.Ticket, error) {
	if tech == nil {
		return nil, fmt.Errorf("%w: technician is required", ErrValidation)
	}
	return s.change(ctx, id, domain.TicketInProgress, func(t *domain.Ticket) error {
		now := s.now()
		t.TechnicianId = tech.ID
		t.TechnicianPhone = tech.Phone
		t.StartedAt = &now
		return nil
	})
}

// Resolve closes a ticket worked by tech with the completion notes and the
// number of documentation photos.
func (s *TicketService) Resolve(ctx context.Context, id int64, tech *domain.Technician, notes string, photoCount int) (*domain.Ticket, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: notes are required", ErrValidation)
	}
	return s.change(ctx, id, domain.TicketResolved, func(t *domain.Ticket) error {
		if tech != nil && t.TechnicianId != 0 && t.TechnicianId != tech.ID {
			return fmt.Errorf("%w: ticket %d is assigned to another technician", ErrInvalidTransition, id)
		}
		now := s.now()
		t.Notes = notes
		t.PhotoCount = photoCount
		t.ResolvedAt = &now
		return nil
	})
}

func (s *TicketService) Cancel(ctx context.Context, id int64, reason string) (*domain.Ticket, error) {
	return s.change(ctx, id, domain.TicketCancelled, func(t *domain.Ticket) error {
		if reason = strings.TrimSpace(reason); reason != "" {
			t.Notes = reason
		}
		return nil
	})
}

// SetStatus is the admin panel entry point for status changes.
func (s *TicketService) SetStatus(ctx context.Context, id int64, status, notes string) (*domain.Ticket, error) {
	switch status {
	case domain.TicketCancelled:
		return s.Cancel(ctx, id, notes)
	case domain.TicketResolved:
		return s.Resolve(ctx, id, nil, notes, -1)
	default:
		return nil, fmt.Errorf("%w: status %q cannot be set directly", ErrValidation, status)
	}
}

// change re-reads the ticket under its lock, checks the transition and
// saves the mutated row.
func (s *TicketService) change(ctx context.Context, id int64, to string, mutate func(t *domain.Ticket) error) (*domain.Ticket, error) {
	var (
		updated  *domain.Ticket
		previous string
	)
	err := s.locker.WithLock(ctx, lock.TicketResource(id), s.lockTimeout, func(ctx context.Context) error {
		t, err := getTicket(s.db.WithContext(ctx), id)
		if err != nil {
			return err
		}
		if !canMove(t.Status, to) {
			return fmt.Errorf("%w: ticket %d is %s", ErrInvalidTransition, id, t.Status)
		}
		if err := mutate(t); err != nil {
			return err
		}
		if t.PhotoCount < 0 {
			var n int64
			if err := s.db.WithContext(ctx).Model(&domain.TicketPhoto{}).Where("ticket_id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			t.PhotoCount = int(n)
		}
		previous = t.Status
		t.Status = to
		if err := s.db.WithContext(ctx).Save(t).Error; err != nil {
			return fmt.Errorf("save ticket: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("ticket: status changed", zap.Int64("ticket", id), zap.String("from", previous), zap.String("to", to))
	s.events.Publish(TopicTicketStatus, TicketEvent{Ticket: *updated, Previous: previous})
	return updated, nil
}

func (s *TicketService) RecordPhoto(ctx context.Context, ticketID int64, saved photoqueue.SavedPhoto) error {
	p := &domain.TicketPhoto{
		ID:         common.UUIDint64(),
		TicketId:   ticketID,
		FileName:   saved.FileName,
		Path:       saved.Path,
		Size:       saved.Size,
		MimeType:   saved.MimeType,
		UploadedBy: saved.UploadedBy,
		UploadedAt: saved.UploadedAt,
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *TicketService) Photos(ctx context.Context, ticketID int64) ([]domain.TicketPhoto, error) {
	var ps []domain.TicketPhoto
	err := s.db.WithContext(ctx).Where("ticket_id = ?", ticketID).Order("uploaded_at ASC").Find(&ps).Error
	return ps, err
}

// PhotoRecorder decorates a photo storage so every saved photo also gets a
// ticket_photo row.
type PhotoRecorder struct {
	Next    photoqueue.Storage
	Tickets *TicketService
}

func (r *PhotoRecorder) Save(ctx context.Context, ticketID string, p photoqueue.Photo) (photoqueue.SavedPhoto, error) {
	saved, err := r.Next.Save(ctx, ticketID, p)
	if err != nil {
		return saved, err
	}
	id, perr := strconv.ParseInt(ticketID, 10, 64)
	if perr != nil {
		zap.L().Warn("ticket: photo for non numeric ticket not recorded", zap.String("ticket", ticketID))
		return saved, nil
	}
	if err := r.Tickets.RecordPhoto(ctx, id, saved); err != nil {
		zap.L().Error("ticket: record photo failed", zap.Int64("ticket", id), zap.Error(err))
	}
	return saved, nil
}
