package domain

import (
	"strconv"
	"time"
)

const (
	PackageSubscription = "subscription"
	PackageSpeedBoost   = "speed_boost"
)

// Package internet plan or speed boost offer. Rates are in Kbps.
type Package struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"index" json:"name"`
	Type      string    `gorm:"size:32;index" json:"type"` // subscription | speed_boost
	UpRate    int       `json:"up_rate"`
	DownRate  int       `json:"down_rate"`
	Price     float64   `json:"price"` // monthly for subscriptions, per day for boosts
	Status    string    `gorm:"size:20" json:"status"`
	Sort      int       `json:"sort"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Package) TableName() string {
	return "package"
}

// RateLabel renders the download/upload pair the way plans are sold, e.g. 20M/10M.
func (p Package) RateLabel() string {
	return kbpsLabel(p.DownRate) + "/" + kbpsLabel(p.UpRate)
}

func kbpsLabel(k int) string {
	if k >= 1024 && k%1024 == 0 {
		return strconv.Itoa(k/1024) + "M"
	}
	return strconv.Itoa(k) + "k"
}
