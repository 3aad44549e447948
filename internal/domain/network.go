package domain

import "time"

const VendorMikrotik = "14988"

// NetNas router terminating customer PPPoE sessions. Only the API
// credentials are needed: queues and sessions are managed through it.
type NetNas struct {
	ID             int64     `json:"id,string" form:"id"`
	Name           string    `json:"name" form:"name"`
	Ipaddr         string    `json:"ipaddr" form:"ipaddr"`
	Username       string    `json:"username" form:"username"`
	Password       string    `json:"-" form:"password"`
	ApiPort        int       `json:"api_port" form:"api_port"`
	ApiState       string    `json:"api_state" form:"api_state"` // enabled | disabled
	ApiLastProbeAt time.Time `json:"api_last_probe_at"`
	ApiLastResult  string    `json:"api_last_result"`
	VendorCode     string    `json:"vendor_code" form:"vendor_code"`
	Status         string    `json:"status" form:"status"`
	Remark         string    `json:"remark" form:"remark"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (NetNas) TableName() string {
	return "net_nas"
}
