package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/taoyao-code/ptsp01-gateway/docs"
	"github.com/taoyao-code/ptsp01-gateway/internal/api/middleware"
	"github.com/taoyao-code/ptsp01-gateway/internal/config"
)

// Server HTTP 服务封装
type Server struct {
	srv    *http.Server
	engine *gin.Engine
}

// New 创建并配置 Gin + HTTP Server，注册探针、指标与文档路由。
// requests 为 nil 时不统计请求数。
func New(cfg config.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func() bool, requests *prometheus.CounterVec) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestTracing(), middleware.Metrics(requests))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if readyFn == nil || readyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}
	if cfg.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.InstanceName(docs.SwaggerInfo.InstanceName())))
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv, engine: r}
}

// Engine 供调用方注册业务路由
func (s *Server) Engine() *gin.Engine { return s.engine }

// Addr 监听地址
func (s *Server) Addr() string { return s.srv.Addr }

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
