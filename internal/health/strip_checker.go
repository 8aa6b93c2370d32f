package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
)

// StripSource 提供需要检查的排插
type StripSource interface {
	List() []*hub.Hub
}

// StripChecker 排插会话健康检查器
type StripChecker struct {
	source StripSource
}

// NewStripChecker 创建排插检查器
func NewStripChecker(source StripSource) *StripChecker {
	return &StripChecker{source: source}
}

// Name 返回检查器名称
func (c *StripChecker) Name() string {
	return "strips"
}

// Check 登录中为健康，重连中为降级，密码错误为不健康
func (c *StripChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	hubs := c.source.List()
	if len(hubs) == 0 {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no strips configured",
			Latency: time.Since(start),
		}
	}

	status := StatusHealthy
	online := 0
	details := make(map[string]any, len(hubs))
	for _, h := range hubs {
		st := StatusHealthy
		switch {
		case h.AuthFailed():
			st = StatusUnhealthy
		case h.Online():
			online++
		default:
			st = StatusDegraded
		}
		status = worse(status, st)
		stats := h.Session().Stats()
		details[h.ID()] = map[string]any{
			"status":     st,
			"phase":      h.Session().Phase().String(),
			"reconnects": stats.Reconnects,
			"last_error": stats.LastError,
		}
	}

	message := "ok"
	if status != StatusHealthy {
		message = fmt.Sprintf("%d/%d strips online", online, len(hubs))
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
