package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/service"
	"go.uber.org/zap"
)

func loadTicket(ctx context.Context, t *turn, arg, usage string) (*domain.Ticket, string) {
	id, ok := parseID(arg)
	if !ok {
		return nil, usage
	}
	tk, err := t.deps.Tickets.Get(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		return nil, fmt.Sprintf("Tiket #%d tidak ditemukan.", id)
	}
	if err != nil {
		zap.L().Error("conversation: load ticket failed", zap.Int64("ticket", id), zap.Error(err))
		return nil, msgInternalError
	}
	return tk, ""
}

func listTickets(ctx context.Context, t *turn) string {
	open, err := t.deps.Tickets.ListOpen(ctx)
	if err != nil {
		zap.L().Error("conversation: list tickets failed", zap.Error(err))
		return msgInternalError
	}
	var fresh, mine []string
	for _, tk := range open {
		line := fmt.Sprintf("#%d %s - %s (%s)", tk.ID, tk.Category, tk.CustomerName, tk.CustomerPhone)
		switch {
		case tk.Status == domain.TicketNew:
			fresh = append(fresh, line)
		case tk.TechnicianId == t.who.Technician.ID:
			mine = append(mine, line)
		}
	}
	if len(fresh) == 0 && len(mine) == 0 {
		return "Tidak ada tiket terbuka saat ini. 👍"
	}
	var b strings.Builder
	if len(fresh) > 0 {
		b.WriteString("🆕 *Tiket baru*\n")
		b.WriteString(strings.Join(limit(fresh, t.cfg.ListLimit), "\n"))
		b.WriteString("\nBalas *proses <id>* untuk mengambil tiket.\n")
	}
	if len(mine) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("🔧 *Sedang Anda tangani*\n")
		b.WriteString(strings.Join(limit(mine, t.cfg.ListLimit), "\n"))
		b.WriteString("\nBalas *selesai <id>* jika pekerjaan sudah beres.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func limit(lines []string, n int) []string {
	if len(lines) > n {
		return append(lines[:n:n], fmt.Sprintf("... dan %d lainnya", len(lines)-n))
	}
	return lines
}

func startProcess(ctx context.Context, t *turn, arg string) string {
	tk, reply := loadTicket(ctx, t, arg, "Format: *proses <id tiket>*, contoh *proses 42*.")
	if tk == nil {
		return reply
	}
	if tk.Status != domain.TicketNew {
		return fmt.Sprintf("Tiket #%d sudah berstatus *%s*.", tk.ID, tk.Status)
	}
	t.set(&TicketConfirmProcess{base: t.at(), TicketID: tk.ID})
	return ticketSummary(tk) + "\n\nProses tiket ini? " + msgYesNo
}

func ticketConfirmProcess(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*TicketConfirmProcess)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			tk, err := t.deps.Tickets.MarkInProgress(ctx, s.TicketID, t.who.Technician)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Tiket #%d sekarang Anda tangani.\nHubungi pelanggan %s di %s.\n\nKetik *selesai %d* setelah pekerjaan beres.",
				tk.ID, tk.CustomerName, tk.CustomerPhone, tk.ID), nil
		}}
	case isNo(input):
		return Outcome{Reply: msgCancelled}
	default:
		return stay(st, msgYesNo)
	}
}

func startResolve(ctx context.Context, t *turn, arg string) string {
	tk, reply := loadTicket(ctx, t, arg, "Format: *selesai <id tiket>*, contoh *selesai 42*.")
	if tk == nil {
		return reply
	}
	if tk.Status != domain.TicketInProgress || tk.TechnicianId != t.who.Technician.ID {
		return fmt.Sprintf("Tiket #%d tidak sedang Anda tangani.", tk.ID)
	}
	t.set(&TicketAwaitingPhotos{base: t.at(), TicketID: tk.ID})
	return fmt.Sprintf(msgSendPhotos, tk.ID)
}

func ticketAwaitingPhotos(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*TicketAwaitingPhotos)
	if !isDone(input) {
		return stay(st, msgPhotosReminder)
	}
	uploaded := t.deps.Photos.Pending(t.sender)
	if sess, ok := t.deps.Photos.SessionFor(t.sender); ok && sess.TicketID == strconv.FormatInt(s.TicketID, 10) {
		uploaded += sess.TotalPhotosUploaded
	}
	if uploaded == 0 {
		return stay(st, msgNoPhotosYet)
	}
	next := &TicketResolveNotes{base: t.at(), TicketID: s.TicketID}
	return Outcome{
		Next: next,
		Effect: func(ctx context.Context) (string, error) {
			res, err := t.deps.Photos.ForceProcess(ctx, t.sender)
			if err != nil {
				return "", err
			}
			next.PhotoCount = res.SessionTotal
			reply := fmt.Sprintf(msgAskNotes, res.SessionTotal, s.TicketID, t.cfg.MinNotes)
			if res.Failed > 0 {
				reply = fmt.Sprintf("⚠️ %d foto gagal disimpan.\n", res.Failed) + reply
			}
			return reply, nil
		},
	}
}

func ticketResolveNotes(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*TicketResolveNotes)
	notes, ok := freeText(input, t.cfg.MinNotes)
	if !ok {
		return stay(st, fmt.Sprintf("Catatan terlalu singkat, minimal %d karakter.", t.cfg.MinNotes))
	}
	return Outcome{
		Reply: fmt.Sprintf("Ringkasan penyelesaian tiket #%d:\nFoto: %d\nCatatan: %s\n\nTutup tiket ini? %s",
			s.TicketID, s.PhotoCount, notes, msgYesNo),
		Next: &TicketResolveConfirm{base: t.at(), TicketID: s.TicketID, PhotoCount: s.PhotoCount, Notes: notes},
	}
}

func ticketResolveConfirm(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*TicketResolveConfirm)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			tk, err := t.deps.Tickets.Resolve(ctx, s.TicketID, t.who.Technician, s.Notes, s.PhotoCount)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Tiket #%d ditutup dengan %d foto dokumentasi. Terima kasih!", tk.ID, tk.PhotoCount), nil
		}}
	case isNo(input):
		return Outcome{
			Reply: msgRewriteNotes,
			Next:  &TicketResolveNotes{base: t.at(), TicketID: s.TicketID, PhotoCount: s.PhotoCount},
		}
	default:
		return stay(st, msgYesNo)
	}
}
