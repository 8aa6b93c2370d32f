// @title PTSP01 Gateway API
// @version 1.0
// @description 智能排插（PTSP01）telnet 网关：状态查询、插座开关与历史数据
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-Api-Key
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default $PTSP01_CONFIG or configs/ptsp01.yaml)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	// 1) 加载配置
	if err := cfgpkg.LoadDotEnv(*envFile); err != nil {
		panic(err)
	}
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	// 3) 信号处理，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, cfg, log); err != nil {
		log.Error("gateway exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
