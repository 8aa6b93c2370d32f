package thirdparty

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// EventStripOnline 排插登录成功（含重连成功）
	EventStripOnline EventType = "strip.online"

	// EventStripOffline 排插连接断开
	EventStripOffline EventType = "strip.offline"

	// EventStripAuthFailed 密码错误，不再重试
	EventStripAuthFailed EventType = "strip.auth_failed"

	// EventOutletSwitchChanged 插座开关状态变更
	EventOutletSwitchChanged EventType = "outlet.switch_changed"
)

// StandardEvent 标准事件结构
type StandardEvent struct {
	EventID   string    `json:"event_id"`   // 事件唯一ID（用于去重）
	EventType EventType `json:"event_type"` // 事件类型
	StripID   string    `json:"strip_id"`   // 排插ID
	Timestamp int64     `json:"timestamp"`  // 事件时间戳（Unix秒）
	Nonce     string    `json:"nonce"`      // 随机数（用于签名）

	Data map[string]any `json:"data"`
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, stripID string, at time.Time, data map[string]any) *StandardEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return &StandardEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		StripID:   stripID,
		Timestamp: at.Unix(),
		Nonce:     fmt.Sprintf("%08x", rand.Uint32()),
		Data:      data,
	}
}

// StripAvailabilityData 排插上线/离线/认证失败数据
type StripAvailabilityData struct {
	Host    string `json:"host"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ToMap 转换为事件 data
func (d *StripAvailabilityData) ToMap() map[string]any {
	m := map[string]any{"host": d.Host}
	if d.Version != "" {
		m["version"] = d.Version
	}
	if d.Reason != "" {
		m["reason"] = d.Reason
	}
	return m
}

// SwitchChangedData 插座开关变更数据
type SwitchChangedData struct {
	OutletID string `json:"outlet_id"`
	Socket   int    `json:"socket"`
	On       bool   `json:"on"`
	Previous *bool  `json:"previous"` // 首次获知时为空
}

// ToMap 转换为事件 data
func (d *SwitchChangedData) ToMap() map[string]any {
	m := map[string]any{
		"outlet_id": d.OutletID,
		"socket":    d.Socket,
		"on":        d.On,
		"previous":  nil,
	}
	if d.Previous != nil {
		m["previous"] = *d.Previous
	}
	return m
}
