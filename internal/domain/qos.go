package domain

import "time"

const (
	QoSPending  = "pending"
	QoSSynced   = "synced"
	QoSFailed   = "failed"
	QoSReverted = "reverted"
)

const (
	QoSKindBase  = "base"
	QoSKindBoost = "boost"
)

// NasQoS desired rate limit for one customer on a NAS. Boost rows carry the
// base rates to restore once ExpiresAt passes.
type NasQoS struct {
	ID           int64      `json:"id,string" gorm:"primaryKey"`
	CustomerId   int64      `json:"customer_id,string" gorm:"index"`
	RequestId    int64      `json:"request_id" gorm:"index"`
	NasId        int64      `json:"nas_id,string" gorm:"index"`
	NasAddr      string     `json:"nas_addr"`
	VendorCode   string     `json:"vendor_code" gorm:"index"` // 14988 = Mikrotik
	QoSName      string     `json:"qos_name"`                 // simple queue name on the device
	Target       string     `json:"target"`                   // queue target, the PPPoE interface
	Kind         string     `json:"kind" gorm:"size:16;index"`
	UpRate       int        `json:"up_rate"`   // Kbps
	DownRate     int        `json:"down_rate"` // Kbps
	BaseUpRate   int        `json:"base_up_rate"`
	BaseDownRate int        `json:"base_down_rate"`
	RemoteID     string     `json:"remote_id"`
	Status       string     `json:"status" gorm:"index"`
	ErrorMsg     string     `json:"error_msg"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	ExpiresAt    *time.Time `json:"expires_at" gorm:"index"`
	SyncedAt     *time.Time `json:"synced_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (NasQoS) TableName() string {
	return "nas_qos"
}

// NasQoSLog audit trail of device operations.
type NasQoSLog struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	QoSID           int64     `json:"qos_id,string" gorm:"index"`
	CustomerId      int64     `json:"customer_id,string"`
	NasID           int64     `json:"nas_id,string"`
	Action          string    `json:"action"` // synced, failed, reverted, session_reset
	Status          string    `json:"status"` // success, failure
	RequestPayload  string    `json:"request_payload" gorm:"type:text"`
	ResponsePayload string    `json:"response_payload" gorm:"type:text"`
	ErrorMsg        string    `json:"error_msg"`
	ExecutedAt      time.Time `json:"executed_at"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

func (NasQoSLog) TableName() string {
	return "nas_qos_log"
}
