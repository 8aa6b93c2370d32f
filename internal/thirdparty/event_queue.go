package thirdparty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

const (
	// Redis Key前缀
	eventQueueKey = "ptsp01:webhook:queue"    // 主队列
	eventDLQKey   = "ptsp01:webhook:dlq"      // 死信队列（Dead Letter Queue）
	eventRetryKey = "ptsp01:webhook:retry:%s" // 重试计数器（event_id）

	maxRetries = 5              // 最大重试次数
	retryTTL   = 24 * time.Hour // 重试记录TTL
)

// EventQueue 基于 Redis List 的持久化事件队列
type EventQueue struct {
	redis  redis.Cmdable
	logger *zap.Logger
	d      deliverer

	popTimeout time.Duration
	retryDelay func(retry int) time.Duration
}

// NewEventQueue 创建事件队列
func NewEventQueue(rdb redis.Cmdable, pusher *Pusher, webhookURL string, m *metrics.AppMetrics, logger *zap.Logger) *EventQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventQueue{
		redis:      rdb,
		logger:     logger,
		d:          deliverer{pusher: pusher, url: webhookURL, m: m},
		popTimeout: 5 * time.Second,
		retryDelay: func(retry int) time.Duration {
			return time.Duration(1<<uint(retry)) * time.Second // 1s, 2s, 4s, 8s, 16s
		},
	}
}

// Enqueue 入队事件
func (q *EventQueue) Enqueue(ctx context.Context, event *StandardEvent) error {
	if q == nil || q.redis == nil {
		return errors.New("event queue not initialized")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.redis.RPush(ctx, eventQueueKey, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	q.logger.Debug("event enqueued",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("strip_id", event.StripID))
	return nil
}

// Run 启动 workerCount 个消费者并阻塞到 ctx 取消
func (q *EventQueue) Run(ctx context.Context, workerCount int) error {
	if q == nil || q.redis == nil || q.d.pusher == nil {
		return errors.New("event queue not initialized")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	q.logger.Info("starting event queue workers",
		zap.Int("worker_count", workerCount),
		zap.String("webhook_url", q.d.url))

	done := make(chan struct{}, workerCount)
	for i := 0; i < workerCount; i++ {
		go func(id int) {
			q.worker(ctx, id)
			done <- struct{}{}
		}(i + 1)
	}
	for i := 0; i < workerCount; i++ {
		<-done
	}
	return ctx.Err()
}

func (q *EventQueue) worker(ctx context.Context, workerID int) {
	logger := q.logger.With(zap.Int("worker_id", workerID))
	for ctx.Err() == nil {
		result, err := q.redis.BLPop(ctx, q.popTimeout, eventQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error("redis blpop error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		// result[0] 为 key，result[1] 为 value
		if len(result) < 2 {
			continue
		}
		q.processEvent(ctx, result[1], logger)
	}
	logger.Info("event queue worker stopped")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// processEvent 推送单个事件；失败按指数退避重新入队，超过次数进入 DLQ
func (q *EventQueue) processEvent(ctx context.Context, eventData string, logger *zap.Logger) {
	var event StandardEvent
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		logger.Error("failed to unmarshal event", zap.Error(err))
		return
	}

	retryCount, err := q.getRetryCount(ctx, event.EventID)
	if err != nil {
		logger.Error("failed to get retry count", zap.String("event_id", event.EventID), zap.Error(err))
	}
	if retryCount >= maxRetries {
		logger.Warn("event exceeded max retries, moving to DLQ",
			zap.String("event_id", event.EventID),
			zap.Int("retry_count", retryCount))
		q.moveToDLQ(ctx, eventData, "max_retries_exceeded")
		return
	}

	res, err := q.d.deliver(ctx, &event, logger)
	switch res {
	case delivered:
		logger.Debug("event pushed", zap.String("event_id", event.EventID))
		q.redis.Del(ctx, fmt.Sprintf(eventRetryKey, event.EventID))
	case rejected:
		q.moveToDLQ(ctx, eventData, err.Error())
	case retryable:
		logger.Warn("event push failed, will retry",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.Int("retry_count", retryCount+1),
			zap.Error(err))
		q.incrementRetryCount(ctx, event.EventID)

		// 关闭期间不等待，直接放回队列
		sleep(ctx, q.retryDelay(retryCount))
		if err := q.redis.RPush(context.WithoutCancel(ctx), eventQueueKey, eventData).Err(); err != nil {
			logger.Error("failed to re-enqueue event", zap.String("event_id", event.EventID), zap.Error(err))
			q.moveToDLQ(context.WithoutCancel(ctx), eventData, "re_enqueue_failed")
		}
	}
}

func (q *EventQueue) moveToDLQ(ctx context.Context, eventData string, reason string) {
	rec, err := json.Marshal(map[string]any{
		"event_data": eventData,
		"reason":     reason,
		"timestamp":  time.Now().Unix(),
	})
	if err != nil {
		q.logger.Error("failed to marshal dlq record", zap.Error(err))
		return
	}
	if err := q.redis.RPush(ctx, eventDLQKey, rec).Err(); err != nil {
		q.logger.Error("failed to move event to DLQ", zap.Error(err))
	}
}

func (q *EventQueue) getRetryCount(ctx context.Context, eventID string) (int, error) {
	n, err := q.redis.Get(ctx, fmt.Sprintf(eventRetryKey, eventID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (q *EventQueue) incrementRetryCount(ctx context.Context, eventID string) {
	key := fmt.Sprintf(eventRetryKey, eventID)
	if err := q.redis.Incr(ctx, key).Err(); err != nil {
		q.logger.Error("failed to increment retry count", zap.String("event_id", eventID), zap.Error(err))
		return
	}
	q.redis.Expire(ctx, key, retryTTL)
}

// QueueLength 获取队列长度
func (q *EventQueue) QueueLength(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, eventQueueKey).Result()
}

// DLQLength 获取死信队列长度
func (q *EventQueue) DLQLength(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, eventDLQKey).Result()
}

// GetDLQEvents 获取死信队列中的事件（用于人工处理）
func (q *EventQueue) GetDLQEvents(ctx context.Context, start, stop int64) ([]string, error) {
	return q.redis.LRange(ctx, eventDLQKey, start, stop).Result()
}

// ClearDLQ 清空死信队列
func (q *EventQueue) ClearDLQ(ctx context.Context) error {
	return q.redis.Del(ctx, eventDLQKey).Err()
}
