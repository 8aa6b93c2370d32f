package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
)

const (
	DefaultKeyPrefix = "ptsp01"
	DefaultChannel   = "ptsp01:events"

	writeTimeout = 2 * time.Second
)

// ChangeEvent 发布到频道的变化消息
type ChangeEvent struct {
	Type    string    `json:"type"` // outlet | availability
	Strip   string    `json:"strip"`
	Socket  int       `json:"socket,omitempty"`
	Field   string    `json:"field,omitempty"`
	Value   *float64  `json:"value,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Version string    `json:"version,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// StateCache 将排插状态写入 Redis 哈希并发布变化
//
// 键布局:
//
//	<prefix>:strip:<id>            online, host, version, updated_at
//	<prefix>:strip:<id>:outlet:<n> switch, voltage, current, power, energy, updated_at
type StateCache struct {
	rdb     redis.Cmdable
	prefix  string
	channel string
	ttl     time.Duration
	log     *zap.Logger
}

// NewStateCache 创建状态缓存订阅者，ttl<=0 表示不过期
func NewStateCache(rdb redis.Cmdable, prefix, channel string, ttl time.Duration, logger *zap.Logger) *StateCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateCache{rdb: rdb, prefix: prefix, channel: channel, ttl: ttl, log: logger}
}

// StripKey 排插哈希键
func (c *StateCache) StripKey(stripID string) string {
	return fmt.Sprintf("%s:strip:%s", c.prefix, stripID)
}

// OutletKey 插座哈希键
func (c *StateCache) OutletKey(stripID string, socket int) string {
	return fmt.Sprintf("%s:strip:%s:outlet:%d", c.prefix, stripID, socket)
}

// OnOutletUpdate 实现 hub.Listener
func (c *StateCache) OnOutletUpdate(ev hub.OutletEvent) {
	field := ev.Field()
	if field == "" {
		return
	}
	key := c.OutletKey(ev.StripID, ev.Socket)
	value := ev.Reading()
	msg := ChangeEvent{Type: "outlet", Strip: ev.StripID, Socket: ev.Socket, Field: field, Value: value, At: ev.At}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if value == nil {
			p.HDel(ctx, key, field)
		} else {
			p.HSet(ctx, key, field, strconv.FormatFloat(*value, 'f', -1, 64))
		}
		p.HSet(ctx, key, "updated_at", ev.At.Unix())
		c.expire(ctx, p, key)
		c.publish(ctx, p, msg)
		return nil
	})
	if err != nil {
		c.log.Warn("redis outlet write failed", zap.String("key", key), zap.Error(err))
	}
}

// OnAvailability 实现 hub.Listener
func (c *StateCache) OnAvailability(ev hub.AvailabilityEvent) {
	key := c.StripKey(ev.StripID)
	msg := ChangeEvent{Type: "availability", Strip: ev.StripID, Kind: ev.Kind.String(), Version: ev.Version, At: ev.At}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	online := "0"
	if ev.Kind == hub.Online {
		online = "1"
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"online", online,
			"state", ev.Kind.String(),
			"host", ev.Host,
			"version", ev.Version,
			"updated_at", ev.At.Unix(),
		)
		c.expire(ctx, p, key)
		c.publish(ctx, p, msg)
		return nil
	})
	if err != nil {
		c.log.Warn("redis strip write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *StateCache) expire(ctx context.Context, p redis.Pipeliner, key string) {
	if c.ttl > 0 {
		p.Expire(ctx, key, c.ttl)
	}
}

func (c *StateCache) publish(ctx context.Context, p redis.Pipeliner, msg ChangeEvent) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Warn("marshal change event failed", zap.Error(err))
		return
	}
	p.Publish(ctx, c.channel, data)
}

// Outlet 读取插座缓存
func (c *StateCache) Outlet(ctx context.Context, stripID string, socket int) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, c.OutletKey(stripID, socket)).Result()
}

// Strip 读取排插缓存
func (c *StateCache) Strip(ctx context.Context, stripID string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, c.StripKey(stripID)).Result()
}
