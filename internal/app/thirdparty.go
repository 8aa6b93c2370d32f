package app

import (
	"context"
	"net/http"

	cfgpkg "github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
	redisstorage "github.com/taoyao-code/ptsp01-gateway/internal/storage/redis"
	"github.com/taoyao-code/ptsp01-gateway/internal/thirdparty"
	"go.uber.org/zap"
)

// NewNotifier 根据配置创建 webhook 通知器与其队列消费函数；未配置时返回 nil。
// Redis 可用时使用持久化队列，否则使用内存队列。
func NewNotifier(cfg cfgpkg.WebhookConfig, redisClient *redisstorage.Client, appm *metrics.AppMetrics, logger *zap.Logger) (*thirdparty.Notifier, func(context.Context)) {
	if !cfg.Enabled() {
		return nil, nil
	}
	pusher := thirdparty.NewPusher(&http.Client{Timeout: cfg.Timeout}, cfg.APIKey, cfg.Secret)

	if redisClient != nil {
		q := thirdparty.NewEventQueue(redisClient.Client, pusher, cfg.URL, appm, logger)
		logger.Info("webhook notifier enabled", zap.String("queue", "redis"), zap.String("url", cfg.URL))
		return thirdparty.NewNotifier(q, logger), func(ctx context.Context) { _ = q.Run(ctx, cfg.Workers) }
	}
	q := thirdparty.NewMemoryQueue(pusher, cfg.URL, cfg.Queue, appm, logger)
	logger.Info("webhook notifier enabled", zap.String("queue", "memory"), zap.String("url", cfg.URL))
	return thirdparty.NewNotifier(q, logger), func(ctx context.Context) { _ = q.Run(ctx) }
}
