package domain

type Role string

const (
	RoleUnknown    Role = "unknown"
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Identity who is behind a WhatsApp sender. Not persisted.
type Identity struct {
	Phone      string
	Name       string
	Role       Role
	Customer   *Customer
	Technician *Technician
	Operator   *SysOpr
}
