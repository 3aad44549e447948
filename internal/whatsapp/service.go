package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/talkincode/ispcare/internal/conversation"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/pkg/common"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"gorm.io/gorm"
)

var ErrNotConnected = errors.New("whatsapp client not connected")

// Handler consumes inbound chat traffic and returns the reply to send.
type Handler interface {
	Handle(ctx context.Context, in conversation.Inbound) string
	HandlePhoto(ctx context.Context, sender string, p photoqueue.Photo) string
}

type Status struct {
	Connected bool      `json:"connected"`
	LoggedIn  bool      `json:"logged_in"`
	Jid       string    `json:"jid"`
	HasQR     bool      `json:"has_qr"`
	QRAt      time.Time `json:"qr_at"`
}

// Service wraps a whatsmeow client whose device store lives in the
// application database.
type Service struct {
	db        *gorm.DB
	container *sqlstore.Container
	client    *whatsmeow.Client
	handler   Handler
	mailbox   *mailbox
	timeout   time.Duration

	qrLock sync.RWMutex
	qr     string
	qrAt   time.Time
}

// New opens the whatsmeow store on the same connection as db.
func New(db *gorm.DB, dbType string) (*Service, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain underlying sql.DB: %w", err)
	}
	driver := "sqlite3"
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("whatsapp: unable to enable sqlite foreign_keys pragma", zap.Error(err))
		}
	}

	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, fmt.Errorf("sqlstore upgrade failed: %w", err)
	}
	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	svc := &Service{
		db:        db,
		container: container,
		client:    whatsmeow.NewClient(device, nil),
		mailbox:   newMailbox(),
		timeout:   2 * time.Minute,
	}
	svc.client.AddEventHandler(svc.onEvent)
	zap.L().Info("whatsapp: service initialized", zap.String("driver", driver), zap.Bool("paired", device.ID != nil))
	return svc, nil
}

// SetHandler must be called before Start.
func (s *Service) SetHandler(h Handler) {
	s.handler = h
}

// Start connects and blocks until ctx is cancelled. An unpaired device
// publishes QR codes for the admin API and the pair command.
func (s *Service) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	zap.L().Info("whatsapp: shutting down client")
	s.client.Disconnect()
	return nil
}

func (s *Service) connect(ctx context.Context) error {
	if s.client.Store.ID == nil {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go s.watchQR(qrChan)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	return nil
}

func (s *Service) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			s.setQR(item.Code)
			zap.L().Info("whatsapp: qr code received", zap.Duration("timeout", item.Timeout))
		case "success":
			s.setQR("")
			zap.L().Info("whatsapp: pairing succeeded")
		default:
			s.setQR("")
			zap.L().Warn("whatsapp: qr channel event", zap.String("event", item.Event), zap.Error(item.Error))
		}
	}
}

func (s *Service) setQR(code string) {
	s.qrLock.Lock()
	s.qr = code
	s.qrAt = time.Now()
	s.qrLock.Unlock()
}

// QRCode returns the pending pairing code, empty when none is outstanding.
func (s *Service) QRCode() string {
	s.qrLock.RLock()
	defer s.qrLock.RUnlock()
	return s.qr
}

// Pair connects an unpaired device and hands every QR code to show until
// pairing completes or ctx ends.
func (s *Service) Pair(ctx context.Context, show func(code string)) error {
	if s.client.Store.ID != nil {
		return fmt.Errorf("device already paired as %s", s.client.Store.ID.String())
	}
	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			show(item.Code)
		case "success":
			return nil
		default:
			return fmt.Errorf("pairing ended: %s: %v", item.Event, item.Error)
		}
	}
	return ctx.Err()
}

func (s *Service) Status() Status {
	st := Status{
		Connected: s.client.IsConnected(),
		LoggedIn:  s.client.IsLoggedIn(),
	}
	if s.client.Store.ID != nil {
		st.Jid = s.client.Store.ID.String()
	}
	s.qrLock.RLock()
	st.HasQR = s.qr != ""
	st.QRAt = s.qrAt
	s.qrLock.RUnlock()
	return st
}

func (s *Service) Disconnect() {
	s.client.Disconnect()
}

func (s *Service) onEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.onMessage(v)
	case *events.Connected:
		jid := ""
		if s.client.Store.ID != nil {
			jid = s.client.Store.ID.ToNonAD().String()
		}
		zap.L().Info("whatsapp: connected", zap.String("jid", jid))
		s.setQR("")
		s.recordDevice(jid, "connected")
	case *events.PairSuccess:
		zap.L().Info("whatsapp: paired", zap.String("jid", v.ID.String()))
		s.recordDevice(v.ID.ToNonAD().String(), "paired")
	case *events.LoggedOut:
		zap.L().Warn("whatsapp: logged out", zap.Any("reason", v.Reason))
		s.recordDevice("", "logged_out")
	case *events.Disconnected:
		zap.L().Warn("whatsapp: disconnected")
	default:
		zap.L().Debug("whatsapp event", zap.String("type", fmt.Sprintf("%T", evt)))
	}
}

// recordDevice keeps the single whatsapp_device row in step with the client.
func (s *Service) recordDevice(jid, status string) {
	if s.db == nil {
		return
	}
	var dev domain.WhatsAppDevice
	err := s.db.Order("id ASC").Limit(1).Find(&dev).Error
	if err != nil {
		zap.L().Warn("whatsapp: load device row failed", zap.Error(err))
		return
	}
	if dev.ID == 0 {
		dev = domain.WhatsAppDevice{ID: common.UUIDint64(), Name: "ispcare"}
	}
	if jid != "" {
		dev.Jid = jid
		dev.Phone = common.NormalizePhone(jid)
	}
	dev.Status = status
	if err := s.db.Save(&dev).Error; err != nil {
		zap.L().Warn("whatsapp: save device row failed", zap.Error(err))
	}
}

func (s *Service) onMessage(m *events.Message) {
	if m.Info.IsFromMe || m.Info.IsGroup || m.Info.Chat.Server == waTypes.BroadcastServer {
		return
	}
	if s.handler == nil {
		return
	}
	sender := senderPhone(m.Info.Sender)
	if sender == "" {
		return
	}
	if img := m.Message.GetImageMessage(); img != nil {
		received := m.Info.Timestamp
		s.mailbox.post(sender, func() { s.handleImage(sender, m.Info.ID, img, received) })
		return
	}
	text := messageText(m.Message)
	if text == "" {
		return
	}
	s.mailbox.post(sender, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		reply := s.handler.Handle(ctx, conversation.Inbound{Sender: sender, Text: text})
		s.reply(ctx, sender, reply)
	})
}

func (s *Service) handleImage(sender, msgID string, img *waE2E.ImageMessage, received time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	data, err := s.client.Download(ctx, img)
	if err != nil {
		zap.L().Error("whatsapp: image download failed", zap.String("sender", sender), zap.Error(err))
		s.reply(ctx, sender, "❌ Foto gagal diunduh, silakan kirim ulang.")
		return
	}
	reply := s.handler.HandlePhoto(ctx, sender, photoqueue.Photo{
		Data:       data,
		FileName:   msgID,
		MimeType:   img.GetMimetype(),
		ReceivedAt: received,
		Size:       len(data),
		Uploader:   sender,
	})
	s.reply(ctx, sender, reply)
	if caption := strings.TrimSpace(img.GetCaption()); caption != "" {
		s.reply(ctx, sender, s.handler.Handle(ctx, conversation.Inbound{Sender: sender, Text: caption}))
	}
}

func (s *Service) reply(ctx context.Context, to, text string) {
	if text == "" {
		return
	}
	if err := s.SendText(ctx, to, text); err != nil {
		zap.L().Warn("whatsapp: reply failed", zap.String("to", to), zap.Error(err))
	}
}

// SendText sends a plain message to a phone number or JID.
func (s *Service) SendText(ctx context.Context, to string, text string) error {
	jid, err := parseRecipient(to)
	if err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	if _, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("send message to %s: %w", jid.User, err)
	}
	zap.L().Debug("whatsapp: message sent", zap.String("jid", jid.String()))
	return nil
}

func (s *Service) SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	jid, err := parseRecipient(to)
	if err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	up, err := s.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	_, err = s.client.SendMessage(ctx, jid, msg)
	return err
}

func (s *Service) SendDocument(ctx context.Context, to string, data []byte, mimeType, fileName string) error {
	jid, err := parseRecipient(to)
	if err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	up, err := s.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("upload document: %w", err)
	}
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		FileName:      proto.String(fileName),
		Title:         proto.String(fileName),
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	_, err = s.client.SendMessage(ctx, jid, msg)
	return err
}

// parseRecipient accepts "0812...", "62812..." or a full JID.
func parseRecipient(to string) (waTypes.JID, error) {
	to = strings.TrimSpace(to)
	if !strings.Contains(to, "@") {
		to = common.ToJID(to)
	}
	if to == "" {
		return waTypes.JID{}, errors.New("empty recipient")
	}
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return waTypes.JID{}, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	return jid, nil
}

func senderPhone(jid waTypes.JID) string {
	return common.NormalizePhone(jid.ToNonAD().User)
}

func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if t := m.GetConversation(); t != "" {
		return strings.TrimSpace(t)
	}
	if t := m.GetExtendedTextMessage().GetText(); t != "" {
		return strings.TrimSpace(t)
	}
	return ""
}
