package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/api/middleware"
)

// RegisterRoutes 注册 /api 下的排插路由
func RegisterRoutes(
	r gin.IRouter,
	handler *StripHandler,
	authCfg middleware.AuthConfig,
	rateCfg middleware.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	api.Use(middleware.RateLimit(rateCfg))

	api.GET("/strips", handler.ListStrips)
	api.GET("/strips/:id", handler.GetStrip)
	api.POST("/strips/:id/refresh", handler.RefreshStrip)
	api.GET("/strips/:id/outlets/:socket", handler.GetOutlet)
	api.POST("/strips/:id/outlets/:socket/switch", handler.SwitchOutlet)
	api.GET("/strips/:id/outlets/:socket/history", handler.OutletHistory)

	logger.Info("strip routes registered", zap.Int("endpoints", 6))
}
