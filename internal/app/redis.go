package app

import (
	cfgpkg "github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/health"
	redisstorage "github.com/taoyao-code/ptsp01-gateway/internal/storage/redis"
	"go.uber.org/zap"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewStateCache 创建排插状态缓存
func NewStateCache(client *redisstorage.Client, cfg cfgpkg.RedisConfig, logger *zap.Logger) *redisstorage.StateCache {
	return redisstorage.NewStateCache(client.Client, cfg.KeyPrefix, cfg.Channel, cfg.TTL, logger)
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
