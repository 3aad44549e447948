package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/talkincode/ispcare/internal/service"
	"go.uber.org/zap"
)

func startReboot(_ context.Context, t *turn) string {
	c := t.who.Customer
	if c.NasId == 0 || c.PppoeUser == "" {
		return msgNoConnection
	}
	t.set(&ConfirmReboot{base: t.at()})
	return msgConfirmReboot
}

func confirmReboot(_ context.Context, t *turn, st State, input string) Outcome {
	c := t.who.Customer
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			n, err := t.deps.Network.RestartSession(ctx, c.NasId, c.PppoeUser)
			if err != nil {
				return "", err
			}
			if n == 0 {
				return msgRebootNoSession, nil
			}
			return msgRebootDone, nil
		}}
	case isNo(input):
		return Outcome{Reply: "Restart koneksi dibatalkan."}
	default:
		return stay(st, msgYesNo)
	}
}

func categoryPrompt() string {
	return "📝 Pilih kategori gangguan:\n" + numbered(reportCategories) + "\nBalas dengan nomor pilihan."
}

func startReport(_ context.Context, t *turn) string {
	t.set(&ReportCategory{base: t.at()})
	return categoryPrompt()
}

func reportCategory(_ context.Context, t *turn, st State, input string) Outcome {
	idx, ok := choice(input, len(reportCategories))
	if !ok {
		for i, c := range reportCategories {
			if strings.EqualFold(strings.TrimSpace(input), c) {
				idx, ok = i, true
				break
			}
		}
	}
	if !ok {
		return stay(st, fmt.Sprintf("Pilihan tidak valid. Balas dengan nomor 1-%d.", len(reportCategories)))
	}
	return Outcome{
		Reply: fmt.Sprintf(msgAskDescription, t.cfg.MinDescription),
		Next:  &ReportDescription{base: t.at(), Category: reportCategories[idx]},
	}
}

func reportDescription(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*ReportDescription)
	desc, ok := freeText(input, t.cfg.MinDescription)
	if !ok {
		return stay(st, fmt.Sprintf("Keterangan terlalu singkat. "+msgAskDescription, t.cfg.MinDescription))
	}
	return Outcome{
		Reply: fmt.Sprintf("Periksa laporan Anda:\nKategori: %s\nKeluhan: %s\n\n%s", s.Category, desc, msgYesNo),
		Next:  &ReportConfirm{base: t.at(), Category: s.Category, Description: desc},
	}
}

func reportConfirm(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*ReportConfirm)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			tk, err := t.deps.Tickets.Create(ctx, t.who.Customer, s.Category, s.Description)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Laporan diterima dengan nomor tiket *#%d*. Teknisi kami akan segera menghubungi Anda.", tk.ID), nil
		}}
	case isNo(input):
		return Outcome{Reply: "Laporan dibatalkan."}
	default:
		return stay(st, msgYesNo)
	}
}

func startSpeedBoost(ctx context.Context, t *turn) string {
	c := t.who.Customer
	if c.NasId == 0 || c.PppoeUser == "" || c.PackageId == 0 {
		return msgNoConnection
	}
	pkgs, err := t.deps.Requests.BoostPackages(ctx)
	if err != nil {
		zap.L().Error("conversation: load boost packages failed", zap.Error(err))
		return msgInternalError
	}
	if len(pkgs) == 0 {
		return msgNoBoostPackages
	}
	items := make([]string, len(pkgs))
	for i, p := range pkgs {
		items[i] = fmt.Sprintf("%s (%s) - %s/hari", p.Name, p.RateLabel(), rupiah(p.Price))
	}
	t.set(&SpeedBoostPackage{base: t.at(), Options: pkgs})
	return "🚀 Pilih paket speed boost:\n" + numbered(items) + "\nBalas dengan nomor pilihan."
}

func durationPrompt() string {
	items := make([]string, len(boostDurations))
	for i, d := range boostDurations {
		items[i] = d.Label
	}
	return "⏳ Pilih durasi:\n" + numbered(items) + "\nBalas dengan nomor pilihan."
}

func speedBoostPackage(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*SpeedBoostPackage)
	idx, ok := choice(input, len(s.Options))
	if !ok {
		return stay(st, fmt.Sprintf("Pilihan tidak valid. Balas dengan nomor 1-%d.", len(s.Options)))
	}
	return Outcome{
		Reply: durationPrompt(),
		Next:  &SpeedBoostDuration{base: t.at(), Package: s.Options[idx]},
	}
}

func speedBoostDuration(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*SpeedBoostDuration)
	idx, ok := choice(input, len(boostDurations))
	if !ok {
		return stay(st, fmt.Sprintf("Pilihan tidak valid. Balas dengan nomor 1-%d.", len(boostDurations)))
	}
	d := boostDurations[idx]
	return Outcome{
		Reply: fmt.Sprintf("Ringkasan speed boost:\nPaket: %s (%s)\nDurasi: %s\nBiaya: %s\n\n%s",
			s.Package.Name, s.Package.RateLabel(), d.Label, rupiah(service.BoostPrice(&s.Package, d.Hours)), msgYesNo),
		Next: &SpeedBoostConfirm{base: t.at(), Package: s.Package, Hours: d.Hours},
	}
}

func speedBoostConfirm(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*SpeedBoostConfirm)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			r, err := t.deps.Requests.CreateSpeedBoost(ctx, t.who.Customer, &s.Package, s.Hours)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Permintaan speed boost *#%d* terkirim. Kami akan mengabari Anda setelah disetujui admin.", r.ID), nil
		}}
	case isNo(input):
		return Outcome{Reply: "Permintaan speed boost dibatalkan."}
	default:
		return stay(st, msgYesNo)
	}
}

const msgAmountPrompt = "💳 Berapa nominal yang sudah Anda transfer? Contoh: *150000*"

func paymentSummary(amt float64) string {
	return fmt.Sprintf("Konfirmasi pembayaran sebesar *%s*?\nAdmin akan memeriksa transfer Anda. %s", rupiah(amt), msgYesNo)
}

func startPayment(_ context.Context, t *turn, arg string) string {
	if amt, ok := amount(arg); ok {
		t.set(&PaymentConfirm{base: t.at(), Amount: amt})
		return paymentSummary(amt)
	}
	t.set(&PaymentAmount{base: t.at()})
	return msgAmountPrompt
}

func paymentAmount(_ context.Context, t *turn, st State, input string) Outcome {
	amt, ok := amount(input)
	if !ok {
		return stay(st, "Nominal tidak valid. "+msgAmountPrompt)
	}
	return Outcome{Reply: paymentSummary(amt), Next: &PaymentConfirm{base: t.at(), Amount: amt}}
}

func paymentConfirm(_ context.Context, t *turn, st State, input string) Outcome {
	s := st.(*PaymentConfirm)
	switch {
	case isYes(input):
		return Outcome{Effect: func(ctx context.Context) (string, error) {
			r, err := t.deps.Requests.CreatePayment(ctx, t.who.Customer, s.Amount, "konfirmasi via WhatsApp")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Konfirmasi pembayaran *#%d* sebesar %s terkirim. Kami akan mengabari Anda setelah diperiksa admin.", r.ID, rupiah(r.Amount)), nil
		}}
	case isNo(input):
		return Outcome{Reply: "Konfirmasi pembayaran dibatalkan."}
	default:
		return stay(st, msgYesNo)
	}
}

func customerStatus(ctx context.Context, t *turn) string {
	c := t.who.Customer
	tickets, err := t.deps.Tickets.ListByCustomer(ctx, c.ID, 3)
	if err != nil {
		zap.L().Error("conversation: load customer tickets failed", zap.Int64("customer", c.ID), zap.Error(err))
		return msgInternalError
	}
	requests, err := t.deps.Requests.ListByCustomer(ctx, c.ID, 3)
	if err != nil {
		zap.L().Error("conversation: load customer requests failed", zap.Int64("customer", c.ID), zap.Error(err))
		return msgInternalError
	}
	if len(tickets) == 0 && len(requests) == 0 {
		return "Belum ada tiket atau permintaan atas nama Anda."
	}
	var b strings.Builder
	if len(tickets) > 0 {
		b.WriteString("🎫 *Tiket terakhir*\n")
		for _, tk := range tickets {
			fmt.Fprintf(&b, "#%d %s - %s\n", tk.ID, tk.Category, tk.Status)
		}
	}
	if len(requests) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("📥 *Permintaan terakhir*\n")
		for _, r := range requests {
			fmt.Fprintf(&b, "#%d %s %s - %s\n", r.ID, r.Type, r.PackageName, r.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
