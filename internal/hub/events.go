package hub

import (
	"math"
	"time"

	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// AvailabilityKind 排插可用性变化类型
type AvailabilityKind int

const (
	Online AvailabilityKind = iota + 1
	Offline
	AuthFailed
)

func (k AvailabilityKind) String() string {
	switch k {
	case Online:
		return "online"
	case Offline:
		return "offline"
	case AuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// OutletEvent 单个插座属性更新
type OutletEvent struct {
	StripID     string
	Socket      int
	Attr        ptsp01.Attribute
	State       ptsp01.OutletState
	SwitchKnown bool // 未登录时开关状态未知
	Online      bool
	At          time.Time
}

// OutletID <strip>_<socket>
func (e OutletEvent) OutletID() string { return OutletID(e.StripID, e.Socket) }

// Value 该属性对应的数值；Switch 为 0/1，电量取有效值
func (e OutletEvent) Value() float64 {
	switch e.Attr {
	case ptsp01.AttrSwitch:
		if e.State.Switch {
			return 1
		}
		return 0
	case ptsp01.AttrVoltage:
		return e.State.Voltage
	case ptsp01.AttrCurrent:
		return e.State.Current
	case ptsp01.AttrPower:
		return e.State.Power
	case ptsp01.AttrEnergy, ptsp01.AttrEnergyMeter:
		return e.State.EffectiveEnergy()
	default:
		return math.NaN()
	}
}

// Field 属性的对外字段名，两个电量来源都映射为 energy
func (e OutletEvent) Field() string {
	switch e.Attr {
	case ptsp01.AttrSwitch:
		return "switch"
	case ptsp01.AttrVoltage:
		return "voltage"
	case ptsp01.AttrCurrent:
		return "current"
	case ptsp01.AttrPower:
		return "power"
	case ptsp01.AttrEnergy, ptsp01.AttrEnergyMeter:
		return "energy"
	default:
		return ""
	}
}

// Reading 同 Value，NaN 或开关未知时返回 nil
func (e OutletEvent) Reading() *float64 {
	if e.Attr == ptsp01.AttrSwitch && !e.SwitchKnown {
		return nil
	}
	return optional(e.Value())
}

// AvailabilityEvent 排插上线、离线或认证失败
type AvailabilityEvent struct {
	StripID string
	Host    string
	Version string
	Kind    AvailabilityKind
	Err     error
	At      time.Time
}

// Listener 订阅 Hub 事件。回调在 Hub 的分发协程中串行执行。
type Listener interface {
	OnOutletUpdate(OutletEvent)
	OnAvailability(AvailabilityEvent)
}

// ListenerFuncs 以函数实现 Listener
type ListenerFuncs struct {
	OutletUpdate func(OutletEvent)
	Availability func(AvailabilityEvent)
}

func (f ListenerFuncs) OnOutletUpdate(e OutletEvent) {
	if f.OutletUpdate != nil {
		f.OutletUpdate(e)
	}
}

func (f ListenerFuncs) OnAvailability(e AvailabilityEvent) {
	if f.Availability != nil {
		f.Availability(e)
	}
}
