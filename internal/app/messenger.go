package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

type textSender interface {
	SendText(ctx context.Context, to, text string) error
}

var errNoTransport = errors.New("whatsapp transport disabled")

// messengerProxy lets the notifier and photo queue be built before the
// whatsapp client exists, or without it.
type messengerProxy struct {
	mu     sync.RWMutex
	target textSender
}

func (m *messengerProxy) Set(t textSender) {
	m.mu.Lock()
	m.target = t
	m.mu.Unlock()
}

func (m *messengerProxy) SendText(ctx context.Context, to, text string) error {
	m.mu.RLock()
	t := m.target
	m.mu.RUnlock()
	if t == nil {
		zap.L().Debug("app: message dropped, no transport", zap.String("to", to))
		return errNoTransport
	}
	return t.SendText(ctx, to, text)
}
