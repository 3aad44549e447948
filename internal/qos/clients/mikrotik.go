package clients

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"
	"go.uber.org/zap"
)

// MikrotikClient talks to RouterOS over the API port (8728).
type MikrotikClient struct {
	mu     sync.Mutex // the API connection is not safe for concurrent commands
	client *routeros.Client
	host   string
}

func NewMikrotikClient(host, username, password string, port int) (*MikrotikClient, error) {
	if port <= 0 {
		port = 8728
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := routeros.Dial(addr, username, password)
	if err != nil {
		zap.L().Error("mikrotik: connect failed",
			zap.String("host", host),
			zap.Int("port", port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("mikrotik connection failed: %w", err)
	}
	zap.L().Info("mikrotik: connected", zap.String("host", host), zap.Int("port", port))
	return &MikrotikClient{client: client, host: host}, nil
}

func (c *MikrotikClient) run(ctx context.Context, args ...string) (*routeros.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.RunArgs(args)
}

func (c *MikrotikClient) FindQueue(ctx context.Context, name string) (string, error) {
	reply, err := c.run(ctx, "/queue/simple/print", "?name="+name, "=.proplist=.id")
	if err != nil {
		return "", fmt.Errorf("find queue error: %w", err)
	}
	if len(reply.Re) == 0 {
		return "", nil
	}
	return reply.Re[0].Map[".id"], nil
}

// CreateQueue adds a simple queue. max-limit is upload/download.
func (c *MikrotikClient) CreateQueue(ctx context.Context, config *QueueConfig) (string, error) {
	if err := validate(config); err != nil {
		return "", err
	}
	args := []string{
		"/queue/simple/add",
		"=name=" + config.Name,
		"=max-limit=" + maxLimit(config),
	}
	if config.Target != "" {
		args = append(args, "=target="+config.Target)
	}
	if config.Comment != "" {
		args = append(args, "=comment="+config.Comment)
	}
	reply, err := c.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("create queue error: %w", err)
	}
	queueID := ""
	if reply.Done != nil {
		queueID = reply.Done.Map["ret"]
		if queueID == "" {
			queueID = reply.Done.Map[".id"]
		}
	}
	if queueID == "" {
		return "", fmt.Errorf("no queue ID returned from Mikrotik")
	}
	zap.L().Info("mikrotik: queue created",
		zap.String("queue_id", queueID),
		zap.String("queue_name", config.Name),
		zap.String("max_limit", maxLimit(config)),
	)
	return queueID, nil
}

func (c *MikrotikClient) UpdateQueue(ctx context.Context, remoteID string, config *QueueConfig) error {
	if remoteID == "" {
		return fmt.Errorf("queue ID is required")
	}
	if err := validate(config); err != nil {
		return err
	}
	args := []string{
		"/queue/simple/set",
		"=.id=" + remoteID,
		"=max-limit=" + maxLimit(config),
	}
	if config.Comment != "" {
		args = append(args, "=comment="+config.Comment)
	}
	if _, err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("update queue error: %w", err)
	}
	zap.L().Info("mikrotik: queue updated", zap.String("queue_id", remoteID), zap.String("max_limit", maxLimit(config)))
	return nil
}

func (c *MikrotikClient) DeleteQueue(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("queue ID is required")
	}
	if _, err := c.run(ctx, "/queue/simple/remove", "=.id="+remoteID); err != nil {
		return fmt.Errorf("delete queue error: %w", err)
	}
	zap.L().Info("mikrotik: queue deleted", zap.String("queue_id", remoteID))
	return nil
}

func (c *MikrotikClient) GetQueue(ctx context.Context, remoteID string) (*QueueConfig, error) {
	if remoteID == "" {
		return nil, fmt.Errorf("queue ID is required")
	}
	reply, err := c.run(ctx, "/queue/simple/print", "?.id="+remoteID)
	if err != nil {
		return nil, fmt.Errorf("get queue error: %w", err)
	}
	if len(reply.Re) == 0 {
		return nil, fmt.Errorf("queue not found: %s", remoteID)
	}
	return parseQueueResponse(reply.Re[0]), nil
}

func (c *MikrotikClient) RemoveSession(ctx context.Context, user string) (int, error) {
	if user == "" {
		return 0, fmt.Errorf("pppoe user is required")
	}
	reply, err := c.run(ctx, "/ppp/active/print", "?name="+user, "=.proplist=.id")
	if err != nil {
		return 0, fmt.Errorf("find session error: %w", err)
	}
	removed := 0
	for _, re := range reply.Re {
		id := re.Map[".id"]
		if id == "" {
			continue
		}
		if _, err := c.run(ctx, "/ppp/active/remove", "=.id="+id); err != nil {
			return removed, fmt.Errorf("remove session error: %w", err)
		}
		removed++
	}
	zap.L().Info("mikrotik: pppoe session removed", zap.String("user", user), zap.Int("count", removed))
	return removed, nil
}

func (c *MikrotikClient) Close() error {
	if c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.client.Close()
	zap.L().Info("mikrotik: connection closed", zap.String("host", c.host))
	return err
}

func validate(config *QueueConfig) error {
	if config == nil {
		return fmt.Errorf("queue config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if config.UpRate < 0 || config.DownRate < 0 {
		return fmt.Errorf("queue rates cannot be negative")
	}
	return nil
}

func maxLimit(config *QueueConfig) string {
	return fmt.Sprintf("%dk/%dk", config.UpRate, config.DownRate)
}

// PPPoETarget is the dynamic interface RouterOS creates for a PPPoE user.
func PPPoETarget(user string) string {
	return "<pppoe-" + user + ">"
}

func parseQueueResponse(sentence *proto.Sentence) *QueueConfig {
	config := &QueueConfig{}
	if sentence.Map == nil {
		return config
	}
	config.Name = sentence.Map["name"]
	config.Target = sentence.Map["target"]
	config.Comment = sentence.Map["comment"]
	config.UpRate, config.DownRate = ParseMaxLimit(sentence.Map["max-limit"])
	return config
}

// ParseMaxLimit reads "1024k/2048k" or "10M/20M" into Kbps. RouterOS prints
// plain bits per second, which is also accepted.
func ParseMaxLimit(s string) (up, down int) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0
	}
	return parseRate(parts[0]), parseRate(parts[1])
}

func parseRate(s string) int {
	s = strings.TrimSpace(s)
	mult := 1
	switch {
	case strings.HasSuffix(s, "k"):
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "M"):
		s = strings.TrimSuffix(s, "M")
		mult = 1024
	default:
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return v / 1000
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v * mult
}
