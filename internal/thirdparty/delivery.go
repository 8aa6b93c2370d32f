package thirdparty

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

// outcome 单次投递结果
type outcome int

const (
	delivered outcome = iota
	retryable         // 网络错误或 5xx
	rejected          // 4xx，不再重试
)

func (o outcome) String() string {
	switch o {
	case delivered:
		return "ok"
	case retryable:
		return "retry"
	default:
		return "rejected"
	}
}

// DefaultPushTimeout 单次推送（含 Pusher 内部重试）的超时
const DefaultPushTimeout = 10 * time.Second

// deliverer 推送事件并记录结果
type deliverer struct {
	pusher  *Pusher
	url     string
	timeout time.Duration
	m       *metrics.AppMetrics
}

func (d *deliverer) deliver(ctx context.Context, ev *StandardEvent, log *zap.Logger) (outcome, error) {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	pushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, body, err := d.pusher.SendJSON(pushCtx, d.url, ev)
	res := delivered
	switch {
	case err != nil || code >= 500:
		res = retryable
	case code >= 400:
		res = rejected
		err = fmt.Errorf("webhook rejected event: http %d", code)
		log.Warn("webhook client error",
			zap.String("event_id", ev.EventID),
			zap.Int("status_code", code),
			zap.ByteString("response", body))
	}
	if d.m != nil {
		d.m.WebhookPushes.WithLabelValues(string(ev.EventType), res.String()).Inc()
	}
	return res, err
}
