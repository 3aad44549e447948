package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// delIfEquals removes a key only if it still holds the value we read, so a
// sweep never deletes a lock that was re-acquired in the meantime.
const delIfEquals = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// RedisStore shares locks between instances through SET NX. Entries also
// carry a TTL of the staleness window so a crashed holder cannot wedge a
// resource even without the sweep.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ispcare:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// or rediss:// url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func encodeEntry(e Entry) string {
	return e.Holder + "|" + strconv.FormatInt(e.AcquiredAt.UnixMilli(), 10)
}

func decodeEntry(id, v string) (Entry, error) {
	i := strings.LastIndex(v, "|")
	if i < 0 {
		return Entry{}, fmt.Errorf("malformed lock value %q", v)
	}
	ms, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("malformed lock timestamp %q: %w", v, err)
	}
	return Entry{ResourceID: id, Holder: v[:i], AcquiredAt: time.UnixMilli(ms)}, nil
}

func (s *RedisStore) TryAcquire(ctx context.Context, e Entry) (bool, error) {
	return s.rdb.SetNX(ctx, s.key(e.ResourceID), encodeEntry(e), s.ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, resourceID string) error {
	return s.rdb.Del(ctx, s.key(resourceID)).Err()
}

func (s *RedisStore) Get(ctx context.Context, resourceID string) (*Entry, error) {
	v, err := s.rdb.Get(ctx, s.key(resourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(resourceID, v)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rawEntry struct {
	entry Entry
	value string
}

func (s *RedisStore) scan(ctx context.Context) ([]rawEntry, error) {
	var (
		out    []rawEntry
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			v, err := s.rdb.Get(ctx, k).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(strings.TrimPrefix(k, s.prefix), v)
			if err != nil {
				continue
			}
			out = append(out, rawEntry{entry: e, value: v})
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out, nil
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range raw {
		if !r.entry.AcquiredAt.Before(cutoff) {
			continue
		}
		n, err := s.rdb.Eval(ctx, delIfEquals, []string{s.key(r.entry.ResourceID)}, r.value).Int()
		if err != nil {
			return ids, err
		}
		if n > 0 {
			ids = append(ids, r.entry.ResourceID)
		}
	}
	return ids, nil
}
