package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backlog 待写入的历史样本数（pg.Recorder 满足）
type Backlog interface {
	Pending() int
}

// DatabaseChecker 数据库健康检查器
type DatabaseChecker struct {
	pool    *pgxpool.Pool
	backlog Backlog
}

// NewDatabaseChecker 创建数据库健康检查器，backlog 可为 nil
func NewDatabaseChecker(pool *pgxpool.Pool, backlog Backlog) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, backlog: backlog}
}

// Name 返回检查器名称
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check 执行健康检查。历史库不可用时记录器保留待写数据，整体降级
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()

	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}

	status := StatusHealthy
	message := "ok"

	if utilization > 0.9 {
		status = StatusDegraded
		message = "connection pool near limit"
	}

	if utilization >= 1.0 {
		message = "connection pool exhausted"
	}

	details := map[string]any{
		"total_conns":    stats.TotalConns(),
		"idle_conns":     stats.IdleConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
		"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
	}
	if c.backlog != nil {
		details["pending_samples"] = c.backlog.Pending()
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
