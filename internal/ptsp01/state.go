package ptsp01

import (
	"math"
	"sync"
	"time"
)

// SocketCount 每个排插的插座数量
const SocketCount = 3

// Attribute 插座属性（对应 qmibtree 路径最后一段）
type Attribute string

const (
	AttrSwitch      Attribute = "Switch"
	AttrVoltage     Attribute = "Voltage"
	AttrCurrent     Attribute = "Current"
	AttrPower       Attribute = "Power"
	AttrEnergy      Attribute = "Energy"
	AttrEnergyMeter Attribute = "EnergyMeter.SingleCount"
)

// AllAttributes 批量脚本与断线通知覆盖的全部属性（顺序固定）
var AllAttributes = []Attribute{AttrSwitch, AttrVoltage, AttrCurrent, AttrPower, AttrEnergy, AttrEnergyMeter}

// Valid 是否为已知属性
func (a Attribute) Valid() bool {
	for _, k := range AllAttributes {
		if k == a {
			return true
		}
	}
	return false
}

// ValidSocket 插座编号是否在 1..3
func ValidSocket(socket int) bool { return socket >= 1 && socket <= SocketCount }

// OutletState 单个插座状态快照
type OutletState struct {
	Socket      int
	Switch      bool
	SwitchSeen  bool    // 是否收到过开关状态
	Voltage     float64 // V
	Current     float64 // A
	Power       float64 // W
	Energy      float64 // 瞬时电量计数
	EnergyMeter float64 // 峰+谷电量之和
	UpdatedAt   time.Time
}

func newOutletState(socket int) *OutletState {
	nan := math.NaN()
	return &OutletState{
		Socket:      socket,
		Voltage:     nan,
		Current:     nan,
		Power:       nan,
		Energy:      nan,
		EnergyMeter: nan,
	}
}

// EffectiveEnergy 对外电量：两个来源取较大者，任一为 NaN 时取另一个
func (o OutletState) EffectiveEnergy() float64 {
	return nanMax(o.Energy, o.EnergyMeter)
}

func nanMax(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case b > a:
		return b
	default:
		return a
	}
}

// StateStore 会话持有的插座状态表，仅由接收协程写入
type StateStore struct {
	mu      sync.RWMutex
	outlets map[int]*OutletState
}

// NewStateStore 创建包含 3 个插座的状态表
func NewStateStore() *StateStore {
	s := &StateStore{outlets: make(map[int]*OutletState, SocketCount)}
	for i := 1; i <= SocketCount; i++ {
		s.outlets[i] = newOutletState(i)
	}
	return s
}

// Get 返回插座状态副本
func (s *StateStore) Get(socket int) (OutletState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outlets[socket]
	if !ok {
		return OutletState{}, false
	}
	return *o, true
}

// Snapshot 返回全部插座状态（按编号排序）
func (s *StateStore) Snapshot() []OutletState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutletState, 0, SocketCount)
	for i := 1; i <= SocketCount; i++ {
		out = append(out, *s.outlets[i])
	}
	return out
}

// apply 写入一条已解析的遥测
func (s *StateStore) apply(t Telemetry, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outlets[t.Socket]
	if !ok {
		return false
	}
	switch t.Attr {
	case AttrSwitch:
		o.Switch = t.On
		o.SwitchSeen = true
	case AttrVoltage:
		o.Voltage = t.Value
	case AttrCurrent:
		o.Current = t.Value
	case AttrPower:
		o.Power = t.Value
	case AttrEnergy:
		o.Energy = t.Value
	case AttrEnergyMeter:
		o.EnergyMeter = t.Value
	default:
		return false
	}
	o.UpdatedAt = at
	return true
}
