package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/httpserver"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；指标关闭时不挂载 metrics 路由
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool, appm *metrics.AppMetrics) *httpserver.Server {
	path := cfg.Metrics.Path
	if !cfg.Metrics.Enable {
		path, metricsHandler = "", nil
	}
	return httpserver.New(cfg.HTTP, path, metricsHandler, readyFn, appm.HTTPRequests)
}
