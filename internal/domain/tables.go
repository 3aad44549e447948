package domain

var Tables = []interface{}{
	// System
	&SysOpr{},
	&SysOprLog{},
	// Subscribers
	&Customer{},
	&Technician{},
	&Package{},
	// Service desk
	&Ticket{},
	&TicketPhoto{},
	&CustomerRequest{},
	// Network
	&NetNas{},
	&NasQoS{},
	&NasQoSLog{},
	&WhatsAppDevice{},
}
