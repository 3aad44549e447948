package domain

import "time"

// Customer subscriber record. Phone is stored normalized (628xx).
type Customer struct {
	ID        int64     `json:"id,string" form:"id"`
	Name      string    `gorm:"index" json:"name" form:"name"`
	Phone     string    `gorm:"uniqueIndex" json:"phone" form:"phone"`
	Address   string    `json:"address" form:"address"`
	PppoeUser string    `gorm:"index" json:"pppoe_user" form:"pppoe_user"` // PPPoE secret name on the NAS
	NasId     int64     `gorm:"index" json:"nas_id,string" form:"nas_id"`
	PackageId int64     `json:"package_id,string" form:"package_id"`
	Status    string    `gorm:"index" json:"status" form:"status"` // enabled | disabled
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customer"
}

// Technician field staff resolving tickets over WhatsApp.
type Technician struct {
	ID        int64     `json:"id,string" form:"id"`
	Name      string    `json:"name" form:"name"`
	Phone     string    `gorm:"uniqueIndex" json:"phone" form:"phone"`
	Area      string    `json:"area" form:"area"`
	Status    string    `gorm:"index" json:"status" form:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Technician) TableName() string {
	return "technician"
}
