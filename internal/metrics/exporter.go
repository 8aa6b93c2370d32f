package metrics

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// Exporter 将 Hub 事件同步到 Prometheus 指标
type Exporter struct {
	m *AppMetrics
}

// NewExporter 创建指标订阅者
func NewExporter(m *AppMetrics) *Exporter { return &Exporter{m: m} }

func setOrDelete(g *prometheus.GaugeVec, v float64, labels ...string) {
	if math.IsNaN(v) {
		g.DeleteLabelValues(labels...)
		return
	}
	g.WithLabelValues(labels...).Set(v)
}

// OnOutletUpdate 实现 hub.Listener
func (e *Exporter) OnOutletUpdate(ev hub.OutletEvent) {
	strip, socket := ev.StripID, strconv.Itoa(ev.Socket)
	if ev.Online {
		e.m.TelemetryTotal.WithLabelValues(string(ev.Attr)).Inc()
	}
	switch ev.Attr {
	case ptsp01.AttrSwitch:
		if !ev.SwitchKnown {
			e.m.OutletSwitch.DeleteLabelValues(strip, socket)
			return
		}
		e.m.OutletSwitch.WithLabelValues(strip, socket).Set(ev.Value())
	case ptsp01.AttrVoltage:
		setOrDelete(e.m.OutletVoltage, ev.Value(), strip, socket)
	case ptsp01.AttrCurrent:
		setOrDelete(e.m.OutletCurrent, ev.Value(), strip, socket)
	case ptsp01.AttrPower:
		setOrDelete(e.m.OutletPower, ev.Value(), strip, socket)
	case ptsp01.AttrEnergy, ptsp01.AttrEnergyMeter:
		setOrDelete(e.m.OutletEnergy, ev.Value(), strip, socket)
	}
}

// OnAvailability 实现 hub.Listener
func (e *Exporter) OnAvailability(ev hub.AvailabilityEvent) {
	switch ev.Kind {
	case hub.Online:
		e.m.StripOnline.WithLabelValues(ev.StripID).Set(1)
	case hub.Offline:
		e.m.StripOnline.WithLabelValues(ev.StripID).Set(0)
		e.m.ConnFailures.WithLabelValues(ev.StripID).Inc()
	case hub.AuthFailed:
		e.m.StripOnline.WithLabelValues(ev.StripID).Set(0)
		e.m.LoginFailures.WithLabelValues(ev.StripID).Inc()
	}
}
