package photoqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/talkincode/ispcare/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var ErrInvalidRequest = errors.New("invalid photo request")

// Photo is one inbound image.
type Photo struct {
	Data       []byte
	FileName   string
	MimeType   string
	ReceivedAt time.Time
	Size       int
	Uploader   string
}

type AddRequest struct {
	Sender   string
	TicketID string
	Photo    Photo
}

// Session accumulates uploads for one ticket across batches.
type Session struct {
	TicketID            string    `json:"ticket_id"`
	TotalPhotosUploaded int       `json:"total_photos_uploaded"`
	LastActivity        time.Time `json:"last_activity"`
}

// Result of one flush.
type Result struct {
	TicketID     string       `json:"ticket_id"`
	Saved        []SavedPhoto `json:"saved"`
	Failed       int          `json:"failed"`
	SessionTotal int          `json:"session_total"`
}

type Notifier interface {
	SendText(ctx context.Context, to, text string) error
}

type Config struct {
	CollectWindow        time.Duration
	MaxBatch             int
	MaxConcurrentFlushes int
	AckDelay             time.Duration
	AckInterval          time.Duration
	SessionIdle          time.Duration
	LimiterIdle          time.Duration
}

func DefaultConfig() Config {
	return Config{
		CollectWindow:        2 * time.Second,
		MaxBatch:             10,
		MaxConcurrentFlushes: 3,
		AckDelay:             500 * time.Millisecond,
		AckInterval:          1500 * time.Millisecond,
		SessionIdle:          30 * time.Minute,
		LimiterIdle:          time.Minute,
	}
}

type Stats struct {
	Senders       int `json:"senders"`
	PendingPhotos int `json:"pending_photos"`
	Processing    int `json:"processing"`
	ActiveFlushes int `json:"active_flushes"`
	Sessions      int `json:"sessions"`
	Limiters      int `json:"limiters"`
}

type queue struct {
	photos       []Photo
	ticketID     string
	processing   bool
	acknowledged bool
	timer        *Debouncer
	ackTimer     *time.Timer
	done         chan struct{}
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// Queue batches photos per sender and flushes them to Storage.
type Queue struct {
	cfg      Config
	storage  Storage
	notifier Notifier
	sessions *cache.Cache
	sem      *semaphore.Weighted
	now      func() time.Time

	mu       sync.Mutex
	queues   map[string]*queue
	limiters map[string]*limiterEntry

	active atomic.Int32
	wg     sync.WaitGroup
}

func New(cfg Config, storage Storage, notifier Notifier) *Queue {
	def := DefaultConfig()
	if cfg.CollectWindow <= 0 {
		cfg.CollectWindow = def.CollectWindow
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.MaxConcurrentFlushes <= 0 {
		cfg.MaxConcurrentFlushes = def.MaxConcurrentFlushes
	}
	if cfg.AckDelay <= 0 {
		cfg.AckDelay = def.AckDelay
	}
	if cfg.AckInterval <= 0 {
		cfg.AckInterval = def.AckInterval
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = def.SessionIdle
	}
	if cfg.LimiterIdle <= 0 {
		cfg.LimiterIdle = def.LimiterIdle
	}
	sessions := cache.New(cfg.SessionIdle, cfg.SessionIdle/2)
	sessions.OnEvicted(func(sender string, _ interface{}) {
		zap.L().Debug("photoqueue: session closed", zap.String("sender", sender))
	})
	return &Queue{
		cfg:      cfg,
		storage:  storage,
		notifier: notifier,
		sessions: sessions,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentFlushes)),
		now:      time.Now,
		queues:   make(map[string]*queue),
		limiters: make(map[string]*limiterEntry),
	}
}

// AddPhoto queues a photo for the sender's ticket. Photos still queued for
// another ticket are flushed before this one is accepted.
func (q *Queue) AddPhoto(ctx context.Context, req AddRequest) error {
	if req.Sender == "" || req.TicketID == "" {
		return fmt.Errorf("%w: sender and ticket are required", ErrInvalidRequest)
	}
	if len(req.Photo.Data) == 0 {
		return fmt.Errorf("%w: empty photo", ErrInvalidRequest)
	}
	p := req.Photo
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = q.now()
	}
	p.Size = len(p.Data)
	if p.Uploader == "" {
		p.Uploader = req.Sender
	}

	q.mu.Lock()
	sq := q.queues[req.Sender]
	if sq != nil && sq.ticketID != req.TicketID && (len(sq.photos) > 0 || sq.processing) {
		prev := sq.ticketID
		q.mu.Unlock()
		zap.L().Info("photoqueue: ticket switched, flushing previous batch",
			zap.String("sender", req.Sender), zap.String("from", prev), zap.String("to", req.TicketID))
		if err := q.drain(ctx, req.Sender, true); err != nil {
			return err
		}
		q.mu.Lock()
		sq = q.queues[req.Sender]
	}
	if sq == nil {
		sq = q.newQueue(req.Sender)
		q.queues[req.Sender] = sq
	}
	sq.ticketID = req.TicketID

	sess, ok := q.getSession(req.Sender)
	if !ok || sess.TicketID != req.TicketID {
		sess = Session{TicketID: req.TicketID}
		sq.acknowledged = false
	}
	sess.LastActivity = q.now()
	q.sessions.SetDefault(req.Sender, sess)

	sq.photos = append(sq.photos, p)
	if !sq.acknowledged {
		sq.acknowledged = true
		q.scheduleAck(req.Sender, sq)
	}
	if len(sq.photos) >= q.cfg.MaxBatch && !sq.processing {
		batch, ticketID := sq.take(q.cfg.MaxBatch)
		q.mu.Unlock()
		q.goFlush(req.Sender, sq, ticketID, batch)
		return nil
	}
	sq.timer.Reset()
	q.mu.Unlock()
	return nil
}

func (q *Queue) newQueue(sender string) *queue {
	sq := &queue{}
	sq.timer = NewDebouncer(q.cfg.CollectWindow, func() {
		if _, err := q.processQueue(context.Background(), sender, true); err != nil {
			zap.L().Error("photoqueue: flush failed", zap.String("sender", sender), zap.Error(err))
		}
	})
	return sq
}

// take cuts at most n photos off the queue and marks it processing.
// Caller holds q.mu.
func (sq *queue) take(n int) ([]Photo, string) {
	sq.processing = true
	sq.done = make(chan struct{})
	sq.timer.Stop()
	if n > len(sq.photos) {
		n = len(sq.photos)
	}
	batch := sq.photos[:n:n]
	sq.photos = append([]Photo(nil), sq.photos[n:]...)
	return batch, sq.ticketID
}

func (q *Queue) goFlush(sender string, sq *queue, ticketID string, batch []Photo) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if _, err := q.flush(context.Background(), sender, sq, ticketID, batch, true); err != nil {
			zap.L().Error("photoqueue: flush failed", zap.String("sender", sender), zap.Error(err))
		}
	}()
}

// processQueue flushes the next batch for sender. It is a no-op while a
// flush for the same sender is running or nothing is queued.
func (q *Queue) processQueue(ctx context.Context, sender string, notify bool) (Result, error) {
	q.mu.Lock()
	sq, ok := q.queues[sender]
	if !ok || sq.processing || len(sq.photos) == 0 {
		q.mu.Unlock()
		return Result{}, nil
	}
	batch, ticketID := sq.take(q.cfg.MaxBatch)
	q.mu.Unlock()
	return q.flush(ctx, sender, sq, ticketID, batch, notify)
}

func (q *Queue) flush(ctx context.Context, sender string, sq *queue, ticketID string, batch []Photo, notify bool) (Result, error) {
	res := Result{TicketID: ticketID}
	requeue := false
	defer func() { q.finish(sender, sq, batch, requeue) }()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		requeue = true
		return res, fmt.Errorf("photoqueue: wait for flush slot: %w", err)
	}
	q.active.Add(1)
	for _, p := range batch {
		saved, err := q.storage.Save(ctx, ticketID, p)
		if err != nil {
			res.Failed++
			metrics.Incr(metrics.PhotoFailed, 1)
			zap.L().Error("photoqueue: save photo failed",
				zap.String("sender", sender), zap.String("ticket", ticketID), zap.Error(err))
			continue
		}
		res.Saved = append(res.Saved, saved)
	}
	q.active.Add(-1)
	q.sem.Release(1)
	metrics.Incr(metrics.PhotoBatchFlushed, 1)
	metrics.Incr(metrics.PhotoSaved, int64(len(res.Saved)))

	q.mu.Lock()
	if q.queues[sender] != sq {
		// cleared while the batch was being written
		q.mu.Unlock()
		zap.L().Info("photoqueue: batch finished after queue was cleared",
			zap.String("sender", sender),
			zap.String("ticket", ticketID),
			zap.Int("saved", len(res.Saved)))
		return res, nil
	}
	sess, ok := q.getSession(sender)
	if !ok || sess.TicketID != ticketID {
		sess = Session{TicketID: ticketID}
	}
	sess.TotalPhotosUploaded += len(res.Saved)
	sess.LastActivity = q.now()
	q.sessions.SetDefault(sender, sess)
	res.SessionTotal = sess.TotalPhotosUploaded
	q.mu.Unlock()

	zap.L().Info("photoqueue: batch flushed",
		zap.String("sender", sender),
		zap.String("ticket", ticketID),
		zap.Int("saved", len(res.Saved)),
		zap.Int("failed", res.Failed),
		zap.Int("session_total", res.SessionTotal))

	if notify && q.notifier != nil {
		if err := q.notifier.SendText(ctx, sender, completionText(res)); err != nil {
			zap.L().Warn("photoqueue: send batch reply failed", zap.String("sender", sender), zap.Error(err))
		}
	}
	return res, nil
}

// finish clears the processing flag and schedules photos that arrived
// while the batch was being written.
func (q *Queue) finish(sender string, sq *queue, batch []Photo, requeue bool) {
	q.mu.Lock()
	if requeue {
		sq.photos = append(append([]Photo(nil), batch...), sq.photos...)
	}
	sq.processing = false
	close(sq.done)
	sq.done = nil
	if q.queues[sender] != sq || len(sq.photos) == 0 {
		q.mu.Unlock()
		return
	}
	if len(sq.photos) >= q.cfg.MaxBatch {
		next, ticketID := sq.take(q.cfg.MaxBatch)
		q.mu.Unlock()
		q.goFlush(sender, sq, ticketID, next)
		return
	}
	sq.timer.Reset()
	q.mu.Unlock()
}

// waitIdle blocks until no flush is running for sender.
func (q *Queue) waitIdle(ctx context.Context, sender string) error {
	for {
		q.mu.Lock()
		sq, ok := q.queues[sender]
		if !ok || !sq.processing {
			q.mu.Unlock()
			return nil
		}
		done := sq.done
		q.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain flushes everything queued for sender, waiting for running flushes.
func (q *Queue) drain(ctx context.Context, sender string, notify bool) error {
	for {
		if err := q.waitIdle(ctx, sender); err != nil {
			return err
		}
		q.mu.Lock()
		sq, ok := q.queues[sender]
		empty := !ok || len(sq.photos) == 0
		q.mu.Unlock()
		if empty {
			return nil
		}
		if _, err := q.processQueue(ctx, sender, notify); err != nil {
			return err
		}
	}
}

// ForceProcess flushes everything queued for sender now and returns the
// combined result. No batch reply is sent; the caller reports the outcome.
func (q *Queue) ForceProcess(ctx context.Context, sender string) (Result, error) {
	var total Result
	for {
		if err := q.waitIdle(ctx, sender); err != nil {
			return total, err
		}
		res, err := q.processQueue(ctx, sender, false)
		if err != nil {
			return total, err
		}
		if res.TicketID != "" {
			total.TicketID = res.TicketID
			total.Saved = append(total.Saved, res.Saved...)
			total.Failed += res.Failed
			continue
		}
		// a timer flush may have taken the batch first
		if err := q.waitIdle(ctx, sender); err != nil {
			return total, err
		}
		if q.Pending(sender) == 0 {
			break
		}
	}
	if sess, ok := q.SessionFor(sender); ok {
		if total.TicketID == "" {
			total.TicketID = sess.TicketID
		}
		total.SessionTotal = sess.TotalPhotosUploaded
	}
	return total, nil
}

// ClearQueue drops pending photos and the session for sender.
func (q *Queue) ClearQueue(sender string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	if sq, ok := q.queues[sender]; ok {
		dropped = len(sq.photos)
		sq.timer.Stop()
		if sq.ackTimer != nil {
			sq.ackTimer.Stop()
		}
		delete(q.queues, sender)
	}
	q.sessions.Delete(sender)
	if dropped > 0 {
		zap.L().Info("photoqueue: queue cleared", zap.String("sender", sender), zap.Int("dropped", dropped))
	}
	return dropped
}

func (q *Queue) getSession(sender string) (Session, bool) {
	v, ok := q.sessions.Get(sender)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

func (q *Queue) SessionFor(sender string) (Session, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.getSession(sender)
}

func (q *Queue) Pending(sender string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if sq, ok := q.queues[sender]; ok {
		return len(sq.photos)
	}
	return 0
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Stats{
		Senders:       len(q.queues),
		ActiveFlushes: int(q.active.Load()),
		Sessions:      q.sessions.ItemCount(),
		Limiters:      len(q.limiters),
	}
	for _, sq := range q.queues {
		st.PendingPhotos += len(sq.photos)
		if sq.processing {
			st.Processing++
		}
	}
	return st
}

func (q *Queue) scheduleAck(sender string, sq *queue) {
	if q.notifier == nil {
		return
	}
	if sq.ackTimer != nil {
		sq.ackTimer.Stop()
	}
	sq.ackTimer = time.AfterFunc(q.cfg.AckDelay, func() {
		if !q.allowReply(sender) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := q.notifier.SendText(ctx, sender, ackText); err != nil {
			zap.L().Warn("photoqueue: send ack failed", zap.String("sender", sender), zap.Error(err))
		}
	})
}

func (q *Queue) allowReply(sender string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.limiters[sender]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Every(q.cfg.AckInterval), 1)}
		q.limiters[sender] = e
	}
	e.lastUsed = q.now()
	return e.lim.Allow()
}

// CleanupIdle forgets rate limiters unused for LimiterIdle and empty queues
// without a session. It returns the number of limiters removed.
func (q *Queue) CleanupIdle(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := now.Add(-q.cfg.LimiterIdle)
	removed := 0
	for sender, e := range q.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(q.limiters, sender)
			removed++
		}
	}
	for sender, sq := range q.queues {
		if len(sq.photos) > 0 || sq.processing {
			continue
		}
		if _, ok := q.sessions.Get(sender); ok {
			continue
		}
		sq.timer.Stop()
		delete(q.queues, sender)
	}
	return removed
}

// Close stops pending timers and waits for running flushes.
func (q *Queue) Close() {
	q.mu.Lock()
	for _, sq := range q.queues {
		sq.timer.Stop()
		if sq.ackTimer != nil {
			sq.ackTimer.Stop()
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

const ackText = "📸 Foto diterima, sedang diproses..."

func completionText(res Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ %d foto tersimpan untuk tiket *%s*.\n", len(res.Saved), res.TicketID)
	fmt.Fprintf(&b, "Total foto: %d", res.SessionTotal)
	if res.Failed > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d foto gagal disimpan, silakan kirim ulang.", res.Failed)
	}
	b.WriteString("\n\nKirim foto lagi atau ketik *selesai* jika sudah.")
	return b.String()
}
