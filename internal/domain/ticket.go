package domain

import "time"

const (
	TicketNew        = "new"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketCancelled  = "cancelled"
)

// Ticket support request raised by a customer and worked by a technician.
// IDs are small sequential numbers because technicians type them in chat.
type Ticket struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id" csv:"id"`
	CustomerId      int64      `gorm:"index" json:"customer_id,string" csv:"customer_id"`
	CustomerName    string     `json:"customer_name" csv:"customer_name"`
	CustomerPhone   string     `gorm:"index" json:"customer_phone" csv:"customer_phone"`
	Category        string     `gorm:"size:64" json:"category" csv:"category"`
	Description     string     `gorm:"type:text" json:"description" csv:"description"`
	Status          string     `gorm:"size:20;index" json:"status" csv:"status"`
	TechnicianId    int64      `gorm:"index" json:"technician_id,string" csv:"technician_id"`
	TechnicianPhone string     `json:"technician_phone" csv:"technician_phone"`
	Notes           string     `gorm:"type:text" json:"notes" csv:"notes"`
	PhotoCount      int        `gorm:"default:0" json:"photo_count" csv:"photo_count"`
	StartedAt       *time.Time `json:"started_at" csv:"-"`
	ResolvedAt      *time.Time `json:"resolved_at" csv:"-"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at" csv:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" csv:"updated_at"`
}

func (Ticket) TableName() string {
	return "ticket"
}

// TicketPhoto one documentation photo written by the upload queue.
type TicketPhoto struct {
	ID         int64     `json:"id,string"`
	TicketId   int64     `gorm:"index" json:"ticket_id"`
	FileName   string    `json:"filename"`
	Path       string    `gorm:"size:1024" json:"path"`
	Size       int       `json:"size"`
	MimeType   string    `json:"mimetype"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (TicketPhoto) TableName() string {
	return "ticket_photo"
}
