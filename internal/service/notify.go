package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/talkincode/ispcare/internal/domain"
	"go.uber.org/zap"
)

// Messenger delivers a WhatsApp text to a phone number.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
}

type Recipients interface {
	TechnicianPhones(ctx context.Context) ([]string, error)
	AdminPhones(ctx context.Context) ([]string, error)
}

// Notifier turns domain events into WhatsApp messages. Sends run on a
// bounded goroutine pool so a slow connection never blocks a publisher.
type Notifier struct {
	messenger  Messenger
	recipients Recipients
	pool       *ants.Pool
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewNotifier(messenger Messenger, recipients Recipients, workers int) (*Notifier, error) {
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		zap.L().Error("notify: send panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create notify pool: %w", err)
	}
	return &Notifier{messenger: messenger, recipients: recipients, pool: pool, timeout: 30 * time.Second}, nil
}

// Subscribe wires the notifier to the bus.
func (n *Notifier) Subscribe(events *Events) error {
	if err := events.OnTicketCreated(n.ticketCreated); err != nil {
		return err
	}
	if err := events.OnTicketStatus(n.ticketStatus); err != nil {
		return err
	}
	if err := events.OnRequestCreated(n.requestCreated); err != nil {
		return err
	}
	return events.OnRequestDecided(n.requestDecided)
}

func (n *Notifier) ticketCreated(ev TicketEvent) {
	t := ev.Ticket
	text := fmt.Sprintf("🆕 Tiket baru #%d\nPelanggan: %s (%s)\nKategori: %s\nKeluhan: %s\n\nBalas *proses %d* untuk mengambil tiket.",
		t.ID, t.CustomerName, t.CustomerPhone, t.Category, t.Description, t.ID)
	n.broadcast(n.recipients.TechnicianPhones, text)
}

func (n *Notifier) ticketStatus(ev TicketEvent) {
	t := ev.Ticket
	if t.CustomerPhone == "" {
		return
	}
	var text string
	switch t.Status {
	case domain.TicketInProgress:
		text = fmt.Sprintf("🔧 Tiket #%d sedang ditangani teknisi kami. Mohon ditunggu.", t.ID)
	case domain.TicketResolved:
		text = fmt.Sprintf("✅ Tiket #%d telah selesai ditangani.", t.ID)
		if notes := strings.TrimSpace(t.Notes); notes != "" {
			text += "\nCatatan teknisi: " + notes
		}
		text += "\n\nTerima kasih telah menggunakan layanan kami."
	case domain.TicketCancelled:
		text = fmt.Sprintf("Tiket #%d dibatalkan.", t.ID)
	default:
		return
	}
	n.send(t.CustomerPhone, text)
}

func (n *Notifier) requestCreated(ev RequestEvent) {
	r := ev.Request
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Permintaan #%d dari %s (%s)\n", r.ID, r.CustomerName, r.CustomerPhone)
	switch r.Type {
	case domain.RequestSpeedBoost:
		fmt.Fprintf(&b, "Speed boost: %s selama %d jam\n", r.PackageName, r.DurationHours)
	case domain.RequestPayment:
		b.WriteString("Konfirmasi pembayaran\n")
	}
	fmt.Fprintf(&b, "Nominal: Rp%.0f\n\nBalas *approve %d* atau *tolak %d*.", r.Amount, r.ID, r.ID)
	n.broadcast(n.recipients.AdminPhones, b.String())
}

func (n *Notifier) requestDecided(ev RequestEvent) {
	r := ev.Request
	if r.CustomerPhone == "" {
		return
	}
	var text string
	switch {
	case r.Status == domain.RequestApproved && r.Type == domain.RequestSpeedBoost:
		text = fmt.Sprintf("✅ Permintaan speed boost #%d disetujui. Kecepatan %s aktif dalam beberapa menit selama %d jam.",
			r.ID, r.PackageName, r.DurationHours)
	case r.Status == domain.RequestApproved:
		text = fmt.Sprintf("✅ Permintaan #%d telah disetujui.", r.ID)
	case r.Status == domain.RequestRejected:
		text = fmt.Sprintf("❌ Permintaan #%d ditolak. Hubungi admin untuk informasi lebih lanjut.", r.ID)
	default:
		return
	}
	n.send(r.CustomerPhone, text)
}

func (n *Notifier) broadcast(list func(context.Context) ([]string, error), text string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	phones, err := list(ctx)
	cancel()
	if err != nil {
		zap.L().Error("notify: load recipients failed", zap.Error(err))
		return
	}
	for _, p := range phones {
		n.send(p, text)
	}
}

func (n *Notifier) send(to, text string) {
	n.wg.Add(1)
	err := n.pool.Submit(func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.messenger.SendText(ctx, to, text); err != nil {
			zap.L().Warn("notify: send failed", zap.String("to", to), zap.Error(err))
		}
	})
	if err != nil {
		n.wg.Done()
		zap.L().Error("notify: submit failed", zap.String("to", to), zap.Error(err))
	}
}

// Flush waits for queued sends.
func (n *Notifier) Flush() {
	n.wg.Wait()
}

func (n *Notifier) Close() {
	n.Flush()
	n.pool.Release()
}
