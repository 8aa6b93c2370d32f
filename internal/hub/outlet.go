package hub

import (
	"context"
	"fmt"

	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// Outlet 排插上的一个插座
type Outlet struct {
	hub    *Hub
	socket int
}

func (o *Outlet) ID() string      { return OutletID(o.hub.id, o.socket) }
func (o *Outlet) Name() string    { return fmt.Sprintf("%s Socket %d", o.hub.name, o.socket) }
func (o *Outlet) Socket() int     { return o.socket }
func (o *Outlet) Hub() *Hub       { return o.hub }
func (o *Outlet) Available() bool { return o.hub.Online() }

// IsOn 开关状态，known=false 表示未知
func (o *Outlet) IsOn() (on bool, known bool) {
	return o.hub.session.SwitchState(o.socket)
}

// TurnOn 打开插座
func (o *Outlet) TurnOn(ctx context.Context) error {
	return o.hub.switchOutlet(ctx, o.socket, true)
}

// TurnOff 关闭插座
func (o *Outlet) TurnOff(ctx context.Context) error {
	return o.hub.switchOutlet(ctx, o.socket, false)
}

// Set 按 on 设置
func (o *Outlet) Set(ctx context.Context, on bool) error {
	return o.hub.switchOutlet(ctx, o.socket, on)
}

func (o *Outlet) Voltage() float64 { return o.hub.session.Voltage(o.socket) }
func (o *Outlet) Current() float64 { return o.hub.session.Current(o.socket) }
func (o *Outlet) Power() float64   { return o.hub.session.Power(o.socket) }
func (o *Outlet) Energy() float64  { return o.hub.session.Energy(o.socket) }

// State 原始状态
func (o *Outlet) State() ptsp01.OutletState {
	s, _ := o.hub.session.Outlet(o.socket)
	return s
}

// Status JSON/YAML 友好的状态
func (o *Outlet) Status() OutletStatus {
	s := o.State()
	st := OutletStatus{
		ID:        o.ID(),
		Socket:    o.socket,
		Voltage:   optional(s.Voltage),
		Current:   optional(s.Current),
		Power:     optional(s.Power),
		Energy:    optional(s.EffectiveEnergy()),
		UpdatedAt: s.UpdatedAt,
	}
	if on, known := o.IsOn(); known {
		st.On = &on
	}
	return st
}
