package models

import (
	"time"
)

// 注意：
// - 与 internal/migrate/sql 中的 DDL 保持一致
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt
// - 数值为空表示未知（设备未上报或 NaN）

// Strip 映射 strips 表
type Strip struct {
	ID      string  `gorm:"column:id;type:text;primaryKey"`
	Host    string  `gorm:"column:host;type:text;not null"`
	Version *string `gorm:"column:version;type:text"`
	Online  bool    `gorm:"column:online;not null;default:false"`
	// 最近一次可用性变化
	State     string     `gorm:"column:state;type:text;not null"`
	LastError *string    `gorm:"column:last_error;type:text"`
	LastSeen  *time.Time `gorm:"column:last_seen_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Strip) TableName() string { return "strips" }

// Outlet 映射 outlets 表（复合主键：strip_id + socket）
type Outlet struct {
	StripID   string    `gorm:"column:strip_id;type:text;primaryKey"`
	Socket    int32     `gorm:"column:socket;primaryKey"`
	SwitchOn  *bool     `gorm:"column:switch_on"`
	Voltage   *float64  `gorm:"column:voltage"`
	Current   *float64  `gorm:"column:current"`
	Power     *float64  `gorm:"column:power"`
	Energy    *float64  `gorm:"column:energy"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Outlet) TableName() string { return "outlets" }

// OutletSample 映射 outlet_samples 表（追加写入，由 CopyFrom 批量插入）
type OutletSample struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StripID   string    `gorm:"column:strip_id;type:text;not null"`
	Socket    int32     `gorm:"column:socket;not null"`
	SwitchOn  *bool     `gorm:"column:switch_on"`
	Voltage   *float64  `gorm:"column:voltage"`
	Current   *float64  `gorm:"column:current"`
	Power     *float64  `gorm:"column:power"`
	Energy    *float64  `gorm:"column:energy"`
	SampledAt time.Time `gorm:"column:sampled_at;not null"`
}

func (OutletSample) TableName() string { return "outlet_samples" }
