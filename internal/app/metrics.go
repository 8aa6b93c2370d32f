package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标，并注册排插会话采集器
func NewMetrics(hubs metrics.HubSource) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	if hubs != nil {
		reg.MustRegister(metrics.NewStripCollector(hubs))
	}
	return reg, appm
}
