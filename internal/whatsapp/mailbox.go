package whatsapp

import (
	"sync"

	"go.uber.org/zap"
)

// mailbox runs posted funcs one at a time per key, in post order. A key's
// goroutine exits once its queue drains.
type mailbox struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func newMailbox() *mailbox {
	return &mailbox{queues: make(map[string][]func())}
}

func (m *mailbox) post(key string, fn func()) {
	m.mu.Lock()
	q, running := m.queues[key]
	m.queues[key] = append(q, fn)
	m.mu.Unlock()
	if !running {
		go m.run(key)
	}
}

func (m *mailbox) run(key string) {
	for {
		m.mu.Lock()
		q := m.queues[key]
		if len(q) == 0 {
			delete(m.queues, key)
			m.mu.Unlock()
			return
		}
		fn := q[0]
		m.queues[key] = q[1:]
		m.mu.Unlock()
		call(key, fn)
	}
}

// call runs fn so that a panic only loses that one message.
func call(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("whatsapp: inbound handler panic",
				zap.String("sender", key),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	fn()
}

func (m *mailbox) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}
