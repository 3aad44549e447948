package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/pkg/common"
	"gorm.io/gorm"
)

// Directory resolves phone numbers to customers, technicians and admins.
type Directory struct {
	db          *gorm.DB
	adminPhones map[string]bool
}

func NewDirectory(db *gorm.DB, adminPhones []string) *Directory {
	m := make(map[string]bool, len(adminPhones))
	for _, p := range adminPhones {
		if n := common.NormalizePhone(p); n != "" {
			m[n] = true
		}
	}
	return &Directory{db: db, adminPhones: m}
}

// Lookup resolves sender. Admin wins over technician, technician over
// customer. Unregistered numbers get RoleUnknown.
func (d *Directory) Lookup(ctx context.Context, sender string) (*domain.Identity, error) {
	phone := common.NormalizePhone(sender)
	id := &domain.Identity{Phone: phone, Role: domain.RoleUnknown}
	if phone == "" {
		return id, nil
	}
	db := d.db.WithContext(ctx)

	var opr domain.SysOpr
	err := db.Where("mobile = ? AND level = ? AND status <> ?", phone, domain.OprLevelAdmin, common.DISABLED).First(&opr).Error
	switch {
	case err == nil:
		id.Operator = &opr
		id.Name = opr.Realname
		id.Role = domain.RoleAdmin
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return id, fmt.Errorf("lookup operator: %w", err)
	}
	if d.adminPhones[phone] {
		id.Role = domain.RoleAdmin
	}

	var tech domain.Technician
	err = db.Where("phone = ? AND status <> ?", phone, common.DISABLED).First(&tech).Error
	switch {
	case err == nil:
		id.Technician = &tech
		if id.Name == "" {
			id.Name = tech.Name
		}
		if id.Role == domain.RoleUnknown {
			id.Role = domain.RoleTechnician
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return id, fmt.Errorf("lookup technician: %w", err)
	}

	var cust domain.Customer
	err = db.Where("phone = ?", phone).First(&cust).Error
	switch {
	case err == nil:
		id.Customer = &cust
		if id.Name == "" {
			id.Name = cust.Name
		}
		if id.Role == domain.RoleUnknown {
			id.Role = domain.RoleCustomer
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return id, fmt.Errorf("lookup customer: %w", err)
	}
	return id, nil
}

// TechnicianPhones active technicians to alert on new tickets.
func (d *Directory) TechnicianPhones(ctx context.Context) ([]string, error) {
	var phones []string
	err := d.db.WithContext(ctx).Model(&domain.Technician{}).
		Where("status <> ?", common.DISABLED).
		Pluck("phone", &phones).Error
	return phones, err
}

// AdminPhones configured admin numbers plus admin operators with a mobile.
func (d *Directory) AdminPhones(ctx context.Context) ([]string, error) {
	var mobiles []string
	err := d.db.WithContext(ctx).Model(&domain.SysOpr{}).
		Where("level = ? AND mobile <> '' AND status <> ?", domain.OprLevelAdmin, common.DISABLED).
		Pluck("mobile", &mobiles).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for p := range d.adminPhones {
		seen[p] = true
		out = append(out, p)
	}
	for _, m := range mobiles {
		p := common.NormalizePhone(m)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *Directory) Customer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	if err := d.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}
