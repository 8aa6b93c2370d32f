package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/ptsp01-gateway/internal/storage/models"
)

// Open 在已有的 pgx 连接池上打开 GORM，与 pgx 共享连接。
func Open(pool *pgxpool.Pool) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return db, nil
}

// Repository 基于 GORM 的排插状态仓库。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的仓库实例。
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(*Repository) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// UpsertOutlets 批量写入插座当前状态，冲突时覆盖全部测量值。
func (r *Repository) UpsertOutlets(ctx context.Context, outlets []models.Outlet) error {
	if len(outlets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "strip_id"}, {Name: "socket"}},
			DoUpdates: clause.Assignments(map[string]any{
				"switch_on":  gorm.Expr("excluded.switch_on"),
				"voltage":    gorm.Expr("excluded.voltage"),
				"current":    gorm.Expr("excluded.current"),
				"power":      gorm.Expr("excluded.power"),
				"energy":     gorm.Expr("excluded.energy"),
				"updated_at": gorm.Expr("NOW()"),
			}),
		}).
		Create(&outlets).Error
}

// UpsertStrip 写入排插可用性。离线时保留上次的版本号与 last_seen_at。
func (r *Repository) UpsertStrip(ctx context.Context, strip models.Strip) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"host":         gorm.Expr("excluded.host"),
				"online":       gorm.Expr("excluded.online"),
				"state":        gorm.Expr("excluded.state"),
				"last_error":   gorm.Expr("excluded.last_error"),
				"version":      gorm.Expr("COALESCE(excluded.version, strips.version)"),
				"last_seen_at": gorm.Expr("COALESCE(excluded.last_seen_at, strips.last_seen_at)"),
				"updated_at":   gorm.Expr("NOW()"),
			}),
		}).
		Create(&strip).Error
}

// GetStrip 查询排插记录。
func (r *Repository) GetStrip(ctx context.Context, id string) (*models.Strip, error) {
	var strip models.Strip
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&strip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &strip, err
}

// ListOutlets 返回排插的插座当前状态，按 socket 排序。
func (r *Repository) ListOutlets(ctx context.Context, stripID string) ([]models.Outlet, error) {
	var outlets []models.Outlet
	if err := r.db.WithContext(ctx).
		Where("strip_id = ?", stripID).
		Order("socket").
		Find(&outlets).Error; err != nil {
		return nil, err
	}
	return outlets, nil
}

// History 查询插座历史样本，按时间倒序。
func (r *Repository) History(ctx context.Context, stripID string, socket int32, since time.Time, limit int) ([]models.OutletSample, error) {
	var samples []models.OutletSample
	q := r.db.WithContext(ctx).
		Where("strip_id = ? AND socket = ?", stripID, socket).
		Order("sampled_at DESC")
	if !since.IsZero() {
		q = q.Where("sampled_at >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}

// PruneSamples 删除早于 before 的样本。
func (r *Repository) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("sampled_at < ?", before).
		Delete(&models.OutletSample{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
