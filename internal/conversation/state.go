package conversation

import (
	"time"

	"github.com/talkincode/ispcare/internal/domain"
)

// Step names the point a sender is at inside a multi-message flow.
type Step string

const (
	StepConfirmReboot        Step = "confirm_reboot"
	StepReportCategory       Step = "report_category"
	StepReportDescription    Step = "report_description"
	StepReportConfirm        Step = "report_confirm"
	StepSpeedBoostPackage    Step = "speedboost_package"
	StepSpeedBoostDuration   Step = "speedboost_duration"
	StepSpeedBoostConfirm    Step = "speedboost_confirm"
	StepTicketConfirmProcess Step = "ticket_confirm_process"
	StepTicketAwaitingPhotos Step = "ticket_awaiting_photos"
	StepTicketResolveNotes   Step = "ticket_resolve_notes"
	StepTicketResolveConfirm Step = "ticket_resolve_confirm"
	StepRequestDecideConfirm Step = "request_decide_confirm"
	StepPaymentAmount        Step = "payment_amount"
	StepPaymentConfirm       Step = "payment_confirm"
)

// State is one variant per step. Each variant carries only the payload its
// step needs.
type State interface {
	Step() Step
	Started() time.Time
}

type base struct {
	StartedAt time.Time
}

func (b base) Started() time.Time { return b.StartedAt }

type ConfirmReboot struct {
	base
}

func (*ConfirmReboot) Step() Step { return StepConfirmReboot }

type ReportCategory struct {
	base
}

func (*ReportCategory) Step() Step { return StepReportCategory }

type ReportDescription struct {
	base
	Category string
}

func (*ReportDescription) Step() Step { return StepReportDescription }

type ReportConfirm struct {
	base
	Category    string
	Description string
}

func (*ReportConfirm) Step() Step { return StepReportConfirm }

// SpeedBoostPackage keeps the offer list shown to the customer so a numeric
// reply maps to the package they saw.
type SpeedBoostPackage struct {
	base
	Options []domain.Package
}

func (*SpeedBoostPackage) Step() Step { return StepSpeedBoostPackage }

type SpeedBoostDuration struct {
	base
	Package domain.Package
}

func (*SpeedBoostDuration) Step() Step { return StepSpeedBoostDuration }

type SpeedBoostConfirm struct {
	base
	Package domain.Package
	Hours   int
}

func (*SpeedBoostConfirm) Step() Step { return StepSpeedBoostConfirm }

type TicketConfirmProcess struct {
	base
	TicketID int64
}

func (*TicketConfirmProcess) Step() Step { return StepTicketConfirmProcess }

// TicketAwaitingPhotos the ticket was verified as the technician's own and
// documentation photos are being collected.
type TicketAwaitingPhotos struct {
	base
	TicketID int64
}

func (*TicketAwaitingPhotos) Step() Step { return StepTicketAwaitingPhotos }

type TicketResolveNotes struct {
	base
	TicketID   int64
	PhotoCount int
}

func (*TicketResolveNotes) Step() Step { return StepTicketResolveNotes }

type TicketResolveConfirm struct {
	base
	TicketID   int64
	PhotoCount int
	Notes      string
}

func (*TicketResolveConfirm) Step() Step { return StepTicketResolveConfirm }

type RequestDecideConfirm struct {
	base
	RequestID int64
	Approve   bool
}

func (*RequestDecideConfirm) Step() Step { return StepRequestDecideConfirm }

type PaymentAmount struct {
	base
}

func (*PaymentAmount) Step() Step { return StepPaymentAmount }

type PaymentConfirm struct {
	base
	Amount float64
}

func (*PaymentConfirm) Step() Step { return StepPaymentConfirm }

// usesPhotoQueue reports whether leaving st must drop queued photos.
func usesPhotoQueue(st State) bool {
	switch st.(type) {
	case *TicketAwaitingPhotos, *TicketResolveNotes, *TicketResolveConfirm:
		return true
	}
	return false
}

// permits reports whether who may continue st. A sender whose record was
// removed or whose role changed mid-flow may not.
func permits(st State, who *domain.Identity) bool {
	if who == nil {
		return false
	}
	switch st.(type) {
	case *ConfirmReboot, *ReportCategory, *ReportDescription, *ReportConfirm,
		*SpeedBoostPackage, *SpeedBoostDuration, *SpeedBoostConfirm,
		*PaymentAmount, *PaymentConfirm:
		return who.Customer != nil
	case *TicketConfirmProcess, *TicketAwaitingPhotos, *TicketResolveNotes, *TicketResolveConfirm:
		return who.Technician != nil
	case *RequestDecideConfirm:
		return who.Role == domain.RoleAdmin
	}
	return false
}
