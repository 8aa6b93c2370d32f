package thirdparty

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

// ErrQueueFull 内存队列已满，事件被丢弃
var ErrQueueFull = errors.New("thirdparty: event queue full")

// DefaultQueueSize 内存队列默认容量
const DefaultQueueSize = 256

// MemoryQueue 进程内事件队列，单 worker 顺序推送；进程退出时未推送事件丢失
type MemoryQueue struct {
	d      deliverer
	events chan *StandardEvent
	logger *zap.Logger
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(pusher *Pusher, webhookURL string, size int, m *metrics.AppMetrics, logger *zap.Logger) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{
		d:      deliverer{pusher: pusher, url: webhookURL, m: m},
		events: make(chan *StandardEvent, size),
		logger: logger,
	}
}

// Enqueue 非阻塞入队
func (q *MemoryQueue) Enqueue(_ context.Context, ev *StandardEvent) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len 当前积压数量
func (q *MemoryQueue) Len() int { return len(q.events) }

// Run 消费队列直到 ctx 取消
func (q *MemoryQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-q.events:
			if _, err := q.d.deliver(ctx, ev, q.logger); err != nil {
				q.logger.Warn("webhook push failed",
					zap.String("event_id", ev.EventID),
					zap.String("event_type", string(ev.EventType)),
					zap.Error(err))
			}
		}
	}
}
