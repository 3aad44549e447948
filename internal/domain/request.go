package domain

import "time"

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

const (
	RequestSpeedBoost = "speed_boost"
	RequestPayment    = "payment"
)

// CustomerRequest needs an admin decision before it takes effect.
type CustomerRequest struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerId    int64      `gorm:"index" json:"customer_id,string"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `gorm:"index" json:"customer_phone"`
	Type          string     `gorm:"size:32;index" json:"type"`
	PackageId     int64      `json:"package_id,string"`
	PackageName   string     `json:"package_name"`
	DurationHours int        `json:"duration_hours"`
	Amount        float64    `json:"amount"`
	Status        string     `gorm:"size:20;index" json:"status"`
	DecidedBy     string     `json:"decided_by"`
	DecidedAt     *time.Time `json:"decided_at"`
	Note          string     `json:"note"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (CustomerRequest) TableName() string {
	return "customer_request"
}
