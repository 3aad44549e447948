package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/service"
	"go.uber.org/zap"
)

func actorName(who *domain.Identity) string {
	if who.Operator != nil && who.Operator.Username != "" {
		return who.Operator.Username
	}
	return "wa:" + who.Phone
}

func listPending(ctx context.Context, t *turn) string {
	rs, err := t.deps.Requests.ListPending(ctx, t.cfg.ListLimit)
	if err != nil {
		zap.L().Error("conversation: list requests failed", zap.Error(err))
		return msgInternalError
	}
	if len(rs) == 0 {
		return "Tidak ada permintaan yang menunggu persetujuan."
	}
	var b strings.Builder
	b.WriteString("📥 *Permintaan menunggu*\n")
	for _, r := range rs {
		fmt.Fprintf(&b, "#%d %s %s - %s (%s) %s\n", r.ID, r.Type, r.PackageName, r.CustomerName, r.CustomerPhone, rupiah(r.Amount))
	}
	b.WriteString("\nBalas *approve <id>* atau *tolak <id>*.")
	return b.String()
}

func startDecide(ctx context.Context, t *turn, arg string, approve bool) string {
	id, ok := parseID(arg)
	if !ok {
		return "Format: *approve <id>* atau *tolak <id>*."
	}
	r, err := t.deps.Requests.Get(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		return fmt.Sprintf("Permintaan #%d tidak ditemukan.", id)
	}
	if err != nil {
		zap.L().Error("conversation: load request failed", zap.Int64("request", id), zap.Error(err))
		return msgInternalError
	}
	if r.Status != domain.RequestPending {
		return fmt.Sprintf("Permintaan #%d sudah *%s* oleh %s.", r.ID, r.Status, r.DecidedBy)
	}
	verb := "Setujui"
	if !approve {
		verb = "Tolak"
	}
	t.set(&RequestDecideConfirm{base: t.at(), RequestID: r.ID, Approve: approve})
	return fmt.Sprintf("%s\n\n%s permintaan ini? %s", requestSummary(r), verb, msgYesNo)
}

func requestDecideConfirm(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*RequestDecideConfirm)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			r, err := t.deps.Requests.Decide(ctx, s.RequestID, s.Approve, actorName(t.who))
			if err != nil {
				return "", err
			}
			if r.Status == domain.RequestApproved {
				return fmt.Sprintf("✅ Permintaan #%d disetujui. Pelanggan sudah diberi tahu.", r.ID), nil
			}
			return fmt.Sprintf("❌ Permintaan #%d ditolak. Pelanggan sudah diberi tahu.", r.ID), nil
		}}
	case isNo(input):
		return Outcome{Reply: msgCancelled}
	default:
		return stay(st, msgYesNo)
	}
}
