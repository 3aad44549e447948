package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/service"
)

const (
	msgNotRegistered   = "Maaf, nomor Anda belum terdaftar sebagai pelanggan. Silakan hubungi admin untuk pendaftaran."
	msgExpired         = "⏱️ Sesi sebelumnya berakhir karena tidak ada balasan. Silakan ulangi prosesnya dari awal."
	msgStateLost       = "⚠️ Sesi tidak ditemukan. Silakan ulangi prosesnya dari awal atau ketik *menu*."
	msgCancelled       = "Proses dibatalkan."
	msgBusy            = "⏳ Data ini sedang diproses oleh pengguna lain. Silakan coba lagi sebentar lagi."
	msgInternalError   = "❌ Terjadi kesalahan sistem, silakan coba lagi nanti."
	msgYesNo           = "Balas *ya* untuk melanjutkan atau *tidak* untuk membatalkan."
	msgPhotoNotExpect  = "Foto tidak sedang diminta. Ketik *menu* untuk melihat perintah."
	msgPhotoFailed     = "❌ Foto gagal diterima, silakan kirim ulang."
	msgNoConnection    = "Data koneksi Anda belum lengkap. Silakan hubungi admin."
	msgConfirmReboot   = "🔄 Koneksi internet Anda akan direstart dan terputus sekitar 1-2 menit.\n\n" + msgYesNo
	msgRebootDone      = "✅ Koneksi sedang direstart. Tunggu 1-2 menit lalu coba kembali."
	msgRebootNoSession = "Tidak ada sesi internet aktif. Pastikan modem menyala, lalu coba lagi."
	msgAskDescription  = "Jelaskan gangguan yang Anda alami (minimal %d karakter)."
	msgNoBoostPackages = "Saat ini belum ada paket speed boost yang tersedia."
	msgSendPhotos      = "📷 Kirim foto dokumentasi pekerjaan tiket #%d.\nKetik *selesai* jika semua foto sudah terkirim."
	msgPhotosReminder  = "Kirim foto dokumentasi, atau ketik *selesai* jika sudah."
	msgNoPhotosYet     = "Belum ada foto yang diterima. Kirim minimal satu foto dokumentasi."
	msgAskNotes        = "📸 %d foto tersimpan untuk tiket #%d.\n\nTulis catatan penyelesaian (minimal %d karakter)."
	msgRewriteNotes    = "Silakan tulis ulang catatan penyelesaian."
)

var reportCategories = []string{"Internet mati", "Internet lambat", "Gangguan WiFi/perangkat", "Lainnya"}

type boostDuration struct {
	Label string
	Hours int
}

var boostDurations = []boostDuration{
	{"1 hari", 24},
	{"3 hari", 72},
	{"7 hari", 168},
}

func numbered(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return b.String()
}

func rupiah(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp" + b.String()
	}
	return "Rp" + b.String()
}

func menuFor(who *domain.Identity) string {
	var b strings.Builder
	name := who.Name
	if name == "" {
		name = who.Phone
	}
	fmt.Fprintf(&b, "Halo *%s*! 👋\nKetik salah satu perintah berikut:\n", name)
	if who.Customer != nil {
		b.WriteString("\n*Pelanggan*\n")
		b.WriteString("• *lapor* - laporkan gangguan\n")
		b.WriteString("• *reboot* - restart koneksi internet\n")
		b.WriteString("• *speedboost* - tambah kecepatan sementara\n")
		b.WriteString("• *bayar <nominal>* - konfirmasi pembayaran\n")
		b.WriteString("• *status* - cek tiket dan permintaan\n")
	}
	if who.Technician != nil {
		b.WriteString("\n*Teknisi*\n")
		b.WriteString("• *tiket* - daftar tiket terbuka\n")
		b.WriteString("• *proses <id>* - ambil tiket\n")
		b.WriteString("• *selesai <id>* - selesaikan tiket\n")
	}
	if who.Role == domain.RoleAdmin {
		b.WriteString("\n*Admin*\n")
		b.WriteString("• *requests* - permintaan menunggu persetujuan\n")
		b.WriteString("• *approve <id>* / *tolak <id>*\n")
	}
	b.WriteString("\nKetik *batal* kapan saja untuk membatalkan proses.")
	return b.String()
}

func ticketSummary(t *domain.Ticket) string {
	return fmt.Sprintf("🎫 Tiket #%d\nPelanggan: %s (%s)\nKategori: %s\nKeluhan: %s\nStatus: %s",
		t.ID, t.CustomerName, t.CustomerPhone, t.Category, t.Description, t.Status)
}

func requestSummary(r *domain.CustomerRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Permintaan #%d\nPelanggan: %s (%s)\n", r.ID, r.CustomerName, r.CustomerPhone)
	if r.Type == domain.RequestSpeedBoost {
		fmt.Fprintf(&b, "Speed boost: %s selama %d jam\n", r.PackageName, r.DurationHours)
	} else {
		fmt.Fprintf(&b, "Jenis: %s\n", r.Type)
	}
	fmt.Fprintf(&b, "Nominal: %s\nStatus: %s", rupiah(r.Amount), r.Status)
	return b.String()
}

// userMessage converts an effect error into the reply the sender sees.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrAlreadyProcessed):
		return "⚠️ Permintaan ini sudah diproses sebelumnya."
	case errors.Is(err, service.ErrInvalidTransition):
		return "⚠️ Status tiket sudah berubah. Ketik *tiket* untuk melihat daftar terbaru."
	case errors.Is(err, service.ErrNotFound):
		return "Data tidak ditemukan."
	case errors.Is(err, service.ErrValidation):
		return "⚠️ Data tidak valid, silakan ulangi dari awal."
	default:
		return msgInternalError
	}
}
