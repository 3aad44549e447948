package qos

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/qos/clients"
	"github.com/talkincode/ispcare/pkg/common"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// QueuePrefix prefixes every simple queue this service owns.
const QueuePrefix = "ispcare-"

// Dialer opens a client for a NAS.
type Dialer func(nas *domain.NetNas) (clients.NasClient, error)

// DialNas picks the client implementation by vendor code.
func DialNas(nas *domain.NetNas) (clients.NasClient, error) {
	switch nas.VendorCode {
	case domain.VendorMikrotik, "":
		return clients.NewMikrotikClient(nas.Ipaddr, nas.Username, nas.Password, nas.ApiPort)
	default:
		return nil, fmt.Errorf("unsupported vendor: %s", nas.VendorCode)
	}
}

// NasQoSService pushes desired rate limits to NAS devices and reverts
// expired speed boosts.
type NasQoSService struct {
	qosRepo NasQoSRepository
	logRepo NasQoSLogRepository
	nasRepo NasRepository
	dial    Dialer

	mu         sync.Mutex
	clientPool map[int64]clients.NasClient

	syncTicker *time.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
}

func NewNasQoSService(qosRepo NasQoSRepository, logRepo NasQoSLogRepository, nasRepo NasRepository, dial Dialer) *NasQoSService {
	if dial == nil {
		dial = DialNas
	}
	return &NasQoSService{
		qosRepo:    qosRepo,
		logRepo:    logRepo,
		nasRepo:    nasRepo,
		dial:       dial,
		clientPool: make(map[int64]clients.NasClient),
		stopChan:   make(chan struct{}),
	}
}

// Start begins periodic synchronization of pending records.
func (s *NasQoSService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.syncTicker = time.NewTicker(interval)
	go s.syncLoop(ctx)
	zap.L().Info("qos: sync service started", zap.Duration("sync_interval", interval))
}

func (s *NasQoSService) Stop() {
	s.stopOnce.Do(func() {
		if s.syncTicker != nil {
			s.syncTicker.Stop()
		}
		close(s.stopChan)
		s.mu.Lock()
		for id, client := range s.clientPool {
			if err := client.Close(); err != nil {
				zap.L().Warn("qos: error closing client connection", zap.Int64("nas_id", id), zap.Error(err))
			}
		}
		s.clientPool = make(map[int64]clients.NasClient)
		s.mu.Unlock()
		zap.L().Info("qos: sync service stopped")
	})
}

func (s *NasQoSService) syncLoop(ctx context.Context) {
	for {
		select {
		case <-s.syncTicker.C:
			s.SyncPending(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SyncPending pushes pending records, then retries failed ones. It returns
// the number of records synced.
func (s *NasQoSService) SyncPending(ctx context.Context) int {
	pending, err := s.qosRepo.GetPending(ctx, 100)
	if err != nil {
		zap.L().Error("qos: failed to get pending queues", zap.Error(err))
		return 0
	}
	synced := 0
	for _, q := range pending {
		if s.syncQueue(ctx, q) {
			synced++
		}
	}
	failed, err := s.qosRepo.GetFailed(ctx, 50)
	if err != nil {
		zap.L().Error("qos: failed to get failed queues", zap.Error(err))
		return synced
	}
	if len(failed) > 0 {
		zap.L().Debug("qos: retrying failed queues", zap.Int("count", len(failed)))
	}
	for _, q := range failed {
		if s.syncQueue(ctx, q) {
			synced++
		}
	}
	return synced
}

func (s *NasQoSService) syncQueue(ctx context.Context, q *domain.NasQoS) bool {
	client, err := s.clientFor(ctx, q.NasId)
	if err != nil {
		s.fail(ctx, q, "connect", err)
		return false
	}
	cfg := &clients.QueueConfig{
		Name:     q.QoSName,
		Target:   q.Target,
		UpRate:   q.UpRate,
		DownRate: q.DownRate,
		Comment:  queueComment(q),
	}

	if q.RemoteID == "" {
		id, err := client.FindQueue(ctx, q.QoSName)
		if err != nil {
			s.evict(q.NasId)
			s.fail(ctx, q, "find", err)
			return false
		}
		q.RemoteID = id
	}
	if q.RemoteID == "" {
		id, err := client.CreateQueue(ctx, cfg)
		if err != nil {
			s.evict(q.NasId)
			s.fail(ctx, q, "create", err)
			return false
		}
		q.RemoteID = id
	} else if err := client.UpdateQueue(ctx, q.RemoteID, cfg); err != nil {
		s.evict(q.NasId)
		s.fail(ctx, q, "update", err)
		return false
	}

	now := time.Now()
	q.Status = domain.QoSSynced
	q.SyncedAt = &now
	q.ErrorMsg = ""
	q.RetryCount = 0
	if err := s.qosRepo.Update(ctx, q); err != nil {
		zap.L().Error("qos: failed to update status", zap.Int64("qos_id", q.ID), zap.Error(err))
		return false
	}
	s.logAction(ctx, q, "synced", "success", "", cfg)
	zap.L().Info("qos: queue synced",
		zap.String("queue_id", q.RemoteID),
		zap.String("queue_name", q.QoSName),
		zap.Int64("nas_id", q.NasId),
	)
	return true
}

// ExpireBoosts restores base rates for boosts past their expiry.
func (s *NasQoSService) ExpireBoosts(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.qosRepo.GetExpiredBoosts(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("load expired boosts: %w", err)
	}
	reverted := 0
	for _, q := range expired {
		client, err := s.clientFor(ctx, q.NasId)
		if err != nil {
			zap.L().Warn("qos: cannot revert boost", zap.Int64("qos_id", q.ID), zap.Error(err))
			continue
		}
		cfg := &clients.QueueConfig{
			Name:     q.QoSName,
			Target:   q.Target,
			UpRate:   q.BaseUpRate,
			DownRate: q.BaseDownRate,
		}
		if err := client.UpdateQueue(ctx, q.RemoteID, cfg); err != nil {
			s.evict(q.NasId)
			s.logAction(ctx, q, "reverted", "failure", err.Error(), cfg)
			zap.L().Warn("qos: revert boost failed", zap.Int64("qos_id", q.ID), zap.Error(err))
			continue
		}
		if err := s.qosRepo.UpdateStatus(ctx, q.ID, domain.QoSReverted, ""); err != nil {
			zap.L().Error("qos: failed to mark boost reverted", zap.Int64("qos_id", q.ID), zap.Error(err))
			continue
		}
		s.logAction(ctx, q, "reverted", "success", "", cfg)
		reverted++
	}
	if reverted > 0 {
		zap.L().Info("qos: speed boosts expired", zap.Int("count", reverted))
	}
	return reverted, nil
}

// RestartSession disconnects the PPPoE session of user on nasID.
func (s *NasQoSService) RestartSession(ctx context.Context, nasID int64, user string) (int, error) {
	client, err := s.clientFor(ctx, nasID)
	if err != nil {
		return 0, err
	}
	n, err := client.RemoveSession(ctx, user)
	entry := &domain.NasQoSLog{
		ID:             common.UUIDint64(),
		NasID:          nasID,
		Action:         "session_reset",
		Status:         "success",
		RequestPayload: user,
		ExecutedAt:     time.Now(),
	}
	if err != nil {
		s.evict(nasID)
		entry.Status = "failure"
		entry.ErrorMsg = err.Error()
	}
	if lerr := s.logRepo.Create(ctx, entry); lerr != nil {
		zap.L().Warn("qos: failed to create log", zap.Error(lerr))
	}
	if err != nil {
		return 0, fmt.Errorf("restart session %s: %w", user, err)
	}
	return n, nil
}

// NewBoost builds the pending record raising a customer to the boost rates
// until expiresAt.
func NewBoost(customer *domain.Customer, nas *domain.NetNas, boost, base *domain.Package, requestID int64, expiresAt time.Time) *domain.NasQoS {
	return &domain.NasQoS{
		ID:           common.UUIDint64(),
		CustomerId:   customer.ID,
		RequestId:    requestID,
		NasId:        nas.ID,
		NasAddr:      nas.Ipaddr,
		VendorCode:   nas.VendorCode,
		QoSName:      QueuePrefix + customer.PppoeUser,
		Target:       clients.PPPoETarget(customer.PppoeUser),
		Kind:         domain.QoSKindBoost,
		UpRate:       boost.UpRate,
		DownRate:     boost.DownRate,
		BaseUpRate:   base.UpRate,
		BaseDownRate: base.DownRate,
		Status:       domain.QoSPending,
		ExpiresAt:    &expiresAt,
	}
}

func (s *NasQoSService) clientFor(ctx context.Context, nasID int64) (clients.NasClient, error) {
	s.mu.Lock()
	if c, ok := s.clientPool[nasID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	nas, err := s.nasRepo.GetByID(ctx, nasID)
	if err != nil {
		return nil, fmt.Errorf("NAS %d not found: %w", nasID, err)
	}
	if nas.ApiState == common.DISABLED {
		return nil, fmt.Errorf("API disabled on NAS %s", nas.Name)
	}
	client, err := s.dial(nas)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clientPool[nasID]; ok {
		_ = client.Close()
		return c, nil
	}
	s.clientPool[nasID] = client
	return client, nil
}

// evict drops a client after an error so the next attempt redials.
func (s *NasQoSService) evict(nasID int64) {
	s.mu.Lock()
	c, ok := s.clientPool[nasID]
	delete(s.clientPool, nasID)
	s.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

func (s *NasQoSService) fail(ctx context.Context, q *domain.NasQoS, op string, err error) {
	msg := fmt.Sprintf("%s failed: %v", op, err)
	zap.L().Warn("qos: sync failed", zap.Int64("qos_id", q.ID), zap.String("op", op), zap.Error(err))
	if uerr := s.qosRepo.UpdateStatus(ctx, q.ID, domain.QoSFailed, msg); uerr != nil {
		zap.L().Error("qos: failed to update error status", zap.Error(uerr))
	}
	if rerr := s.qosRepo.IncrementRetry(ctx, q.ID); rerr != nil {
		zap.L().Error("qos: failed to increment retry", zap.Error(rerr))
	}
	s.logAction(ctx, q, "failed", "failure", msg, nil)
}

func (s *NasQoSService) logAction(ctx context.Context, q *domain.NasQoS, action, status, errMsg string, req *clients.QueueConfig) {
	entry := &domain.NasQoSLog{
		ID:         common.UUIDint64(),
		QoSID:      q.ID,
		CustomerId: q.CustomerId,
		NasID:      q.NasId,
		Action:     action,
		Status:     status,
		ErrorMsg:   errMsg,
		ExecutedAt: time.Now(),
	}
	if req != nil {
		if b, err := json.Marshal(req); err == nil {
			entry.RequestPayload = string(b)
		}
	}
	if err := s.logRepo.Create(ctx, entry); err != nil {
		zap.L().Warn("qos: failed to create log", zap.Error(err))
	}
}

func queueComment(q *domain.NasQoS) string {
	if q.Kind == domain.QoSKindBoost && q.ExpiresAt != nil {
		return "boost until " + q.ExpiresAt.Format("2006-01-02 15:04")
	}
	return "managed by ispcare"
}
