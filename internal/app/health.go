package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taoyao-code/ptsp01-gateway/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器，初始只包含排插检查器
func NewHealthAggregator(strips health.StripSource) *health.Aggregator {
	return health.NewAggregator(health.NewStripChecker(strips))
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r gin.IRoutes, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddDatabaseChecker 添加数据库检查器，backlog 为待写入样本数
func AddDatabaseChecker(aggregator *health.Aggregator, dbpool *pgxpool.Pool, backlog health.Backlog) {
	if dbpool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(dbpool, backlog))
	}
}
