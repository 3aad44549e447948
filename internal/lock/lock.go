package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talkincode/ispcare/pkg/metrics"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned by WithLock when the resource stayed busy for
// the whole acquire timeout.
var ErrLockTimeout = errors.New("could not acquire lock")

// Entry is a held lock.
type Entry struct {
	ResourceID string    `json:"resource_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	Holder     string    `json:"holder"`
}

// Store keeps at most one Entry per resource id.
type Store interface {
	// TryAcquire creates the entry if no entry exists for its resource id.
	TryAcquire(ctx context.Context, e Entry) (bool, error)
	// Release deletes the entry regardless of holder.
	Release(ctx context.Context, resourceID string) error
	// Get returns nil when the resource is free.
	Get(ctx context.Context, resourceID string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	// DeleteOlderThan removes entries acquired before cutoff and returns their ids.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Options struct {
	// PollInterval bounds how long a waiter sleeps between attempts when no
	// local release signal arrives (releases from another process).
	PollInterval   time.Duration
	StaleAfter     time.Duration
	DefaultTimeout time.Duration
	Holder         string
	Now            func() time.Time
}

// Locker is an advisory lock keyed by resource id.
type Locker struct {
	store Store
	opts  Options

	mu      sync.Mutex
	waiters map[string]*waiter
}

// waiter is the release signal shared by everyone waiting on one resource.
type waiter struct {
	ch   chan struct{}
	refs int
}

func DefaultHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func New(store Store, opts Options) *Locker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	if opts.Holder == "" {
		opts.Holder = DefaultHolder()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Locker{store: store, opts: opts, waiters: make(map[string]*waiter)}
}

// wait registers interest in the next release of resourceID. Every call
// must be paired with leave.
func (l *Locker) wait(resourceID string) *waiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.waiters[resourceID]
	if !ok {
		w = &waiter{ch: make(chan struct{})}
		l.waiters[resourceID] = w
	}
	w.refs++
	return w
}

// leave drops interest in w; the last waiter out removes it.
func (l *Locker) leave(resourceID string, w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w.refs--
	if w.refs <= 0 && l.waiters[resourceID] == w {
		delete(l.waiters, resourceID)
	}
}

func (l *Locker) signal(resourceID string) {
	l.mu.Lock()
	if w, ok := l.waiters[resourceID]; ok {
		close(w.ch)
		delete(l.waiters, resourceID)
	}
	l.mu.Unlock()
}

func (l *Locker) pendingWaiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// Acquire blocks until the lock is taken or timeout elapses. A timeout
// returns false with a nil error; ctx cancellation returns ctx.Err().
func (l *Locker) Acquire(ctx context.Context, resourceID string, timeout time.Duration) (bool, error) {
	if resourceID == "" {
		return false, fmt.Errorf("lock: empty resource id")
	}
	if timeout <= 0 {
		timeout = l.opts.DefaultTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(l.opts.PollInterval)
	defer poll.Stop()

	for {
		// register before trying so a release in between is not lost
		w := l.wait(resourceID)
		ok, err := l.store.TryAcquire(ctx, Entry{
			ResourceID: resourceID,
			AcquiredAt: l.opts.Now(),
			Holder:     l.opts.Holder,
		})
		if err != nil {
			l.leave(resourceID, w)
			return false, fmt.Errorf("lock %s: %w", resourceID, err)
		}
		if ok {
			l.leave(resourceID, w)
			metrics.Incr(metrics.LockAcquired, 1)
			return true, nil
		}
		select {
		case <-w.ch:
		case <-poll.C:
		case <-deadline.C:
			l.leave(resourceID, w)
			metrics.Incr(metrics.LockTimeout, 1)
			zap.L().Debug("lock: acquire timed out", zap.String("resource", resourceID), zap.Duration("timeout", timeout))
			return false, nil
		case <-ctx.Done():
			l.leave(resourceID, w)
			return false, ctx.Err()
		}
		l.leave(resourceID, w)
	}
}

// Release unconditionally frees resourceID and wakes local waiters.
func (l *Locker) Release(ctx context.Context, resourceID string) error {
	err := l.store.Release(ctx, resourceID)
	l.signal(resourceID)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", resourceID, err)
	}
	return nil
}

// WithLock runs fn while holding resourceID. The lock is released exactly
// once, after fn returns or panics.
func (l *Locker) WithLock(ctx context.Context, resourceID string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx, resourceID, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockTimeout, resourceID)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx), resourceID); err != nil {
			zap.L().Warn("lock: release failed", zap.String("resource", resourceID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// Sweep deletes entries older than the staleness window.
func (l *Locker) Sweep(ctx context.Context) ([]string, error) {
	cutoff := l.opts.Now().Add(-l.opts.StaleAfter)
	ids, err := l.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sweep locks: %w", err)
	}
	for _, id := range ids {
		l.signal(id)
		zap.L().Warn("lock: removed stale lock", zap.String("resource", id), zap.Duration("stale_after", l.opts.StaleAfter))
	}
	if len(ids) > 0 {
		metrics.Incr(metrics.LockSwept, int64(len(ids)))
	}
	return ids, nil
}

func (l *Locker) Snapshot(ctx context.Context) ([]Entry, error) {
	return l.store.List(ctx)
}

func (l *Locker) IsLocked(ctx context.Context, resourceID string) (bool, error) {
	e, err := l.store.Get(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// StartSweeper runs Sweep every interval until ctx is done. The application
// normally drives Sweep from its cron scheduler instead.
func (l *Locker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.Sweep(ctx); err != nil {
					zap.L().Error("lock: sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// ResourceID helpers used by the services.
func TicketResource(ticketID int64) string   { return fmt.Sprintf("ticket-%d", ticketID) }
func RequestResource(requestID int64) string { return fmt.Sprintf("request-%d", requestID) }
