package clients

import "context"

// QueueConfig rate limit applied to one customer. Rates are in Kbps.
type QueueConfig struct {
	Name     string
	Target   string // PPPoE interface, e.g. <pppoe-budi>
	UpRate   int
	DownRate int
	Comment  string
}

// NasClient manages customer queues and PPPoE sessions on a NAS.
type NasClient interface {
	// FindQueue returns the remote id of the queue named name, or "" if absent.
	FindQueue(ctx context.Context, name string) (string, error)
	CreateQueue(ctx context.Context, config *QueueConfig) (remoteID string, err error)
	UpdateQueue(ctx context.Context, remoteID string, config *QueueConfig) error
	DeleteQueue(ctx context.Context, remoteID string) error
	GetQueue(ctx context.Context, remoteID string) (*QueueConfig, error)
	// RemoveSession drops the active PPPoE session of user so the CPE
	// redials. It returns the number of sessions removed.
	RemoveSession(ctx context.Context, user string) (int, error)
	Close() error
}
