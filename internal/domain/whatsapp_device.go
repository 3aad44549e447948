package domain

import "time"

// WhatsAppDevice the paired bot account. Jid is set once pairing completes.
type WhatsAppDevice struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Jid       string    `json:"jid"`
	Status    string    `json:"status"` // created, paired, connected, logged_out
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhatsAppDevice) TableName() string {
	return "whatsapp_device"
}
