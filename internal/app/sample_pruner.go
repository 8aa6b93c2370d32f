package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SamplePruneStore 历史样本清理（gormrepo.Repository 满足）
type SamplePruneStore interface {
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}

// SamplePruner 定期删除超过保留期的历史样本
type SamplePruner struct {
	store         SamplePruneStore
	retention     time.Duration
	logger        *zap.Logger
	checkInterval time.Duration // 检查间隔
	now           func() time.Time

	// 统计
	statsPruned int64
}

// NewSamplePruner 创建样本清理器
func NewSamplePruner(store SamplePruneStore, retention time.Duration, logger *zap.Logger) *SamplePruner {
	return &SamplePruner{
		store:         store,
		retention:     retention,
		logger:        logger,
		checkInterval: 1 * time.Hour, // 每小时清理一次
		now:           time.Now,
	}
}

// Start 启动清理循环，启动时先执行一次
func (p *SamplePruner) Start(ctx context.Context) {
	p.logger.Info("sample pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("check_interval", p.checkInterval))

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	p.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sample pruner stopped", zap.Int64("total_pruned", p.statsPruned))
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *SamplePruner) prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneSamples(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to prune outlet samples", zap.Error(err))
		}
		return
	}
	if n > 0 {
		p.statsPruned += n
		p.logger.Info("pruned outlet samples",
			zap.Int64("pruned", n),
			zap.Time("cutoff", cutoff),
			zap.Int64("total_pruned", p.statsPruned))
	}
}

// Pruned 累计删除条数
func (p *SamplePruner) Pruned() int64 { return p.statsPruned }
