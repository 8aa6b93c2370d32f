package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	cfgpkg "github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/ptsp01-gateway/internal/storage/pg"
	"go.uber.org/zap"
)

// ConnectDB 建立数据库连接、建表，并在同一连接池上打开 GORM 仓储
func ConnectDB(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, *gormrepo.Repository, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, nil, err
	}
	if err := pgstorage.EnsureSchema(ctx, dbpool); err != nil {
		dbpool.Close()
		log.Error("db schema error", zap.Error(err))
		return nil, nil, err
	}
	db, err := gormrepo.Open(dbpool)
	if err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("open gorm: %w", err)
	}
	log.Info("db schema ensured")
	return dbpool, gormrepo.New(db), nil
}
