package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 排插业务指标
type AppMetrics struct {
	OutletVoltage   *prometheus.GaugeVec   // labels: strip, socket
	OutletCurrent   *prometheus.GaugeVec   // labels: strip, socket
	OutletPower     *prometheus.GaugeVec   // labels: strip, socket
	OutletEnergy    *prometheus.GaugeVec   // labels: strip, socket
	OutletSwitch    *prometheus.GaugeVec   // labels: strip, socket；未知时删除
	StripOnline     *prometheus.GaugeVec   // labels: strip
	TelemetryTotal  *prometheus.CounterVec // labels: attr
	ConnFailures    *prometheus.CounterVec // labels: strip
	LoginFailures   *prometheus.CounterVec // labels: strip
	CommandsTotal   *prometheus.CounterVec // labels: kind=switch|refresh, result=ok|error
	HTTPRequests    *prometheus.CounterVec // labels: method, route, code
	WebhookPushes   *prometheus.CounterVec // labels: event, result
	MQTTMessages    *prometheus.CounterVec // labels: direction=in|out
	RecorderFlushes *prometheus.CounterVec // labels: result
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	outlet := []string{"strip", "socket"}
	m := &AppMetrics{
		OutletVoltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_outlet_voltage_volts",
			Help: "Outlet voltage.",
		}, outlet),
		OutletCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_outlet_current_amperes",
			Help: "Outlet current.",
		}, outlet),
		OutletPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_outlet_power_watts",
			Help: "Outlet active power.",
		}, outlet),
		OutletEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_outlet_energy_kwh",
			Help: "Outlet accumulated energy (max of counter and peak+valley meter).",
		}, outlet),
		OutletSwitch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_outlet_switch_on",
			Help: "Outlet relay state (1=on). Absent while unknown.",
		}, outlet),
		StripOnline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptsp01_strip_online",
			Help: "Whether the strip session is logged in.",
		}, []string{"strip"}),
		TelemetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_telemetry_updates_total",
			Help: "Parsed telemetry values by attribute.",
		}, []string{"attr"}),
		ConnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_connection_failures_total",
			Help: "Connection losses per strip.",
		}, []string{"strip"}),
		LoginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_login_failures_total",
			Help: "Rejected logins per strip.",
		}, []string{"strip"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_commands_total",
			Help: "Commands issued through the API and MQTT bridge.",
		}, []string{"kind", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_http_requests_total",
			Help: "HTTP API requests.",
		}, []string{"method", "route", "code"}),
		WebhookPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_webhook_push_total",
			Help: "Webhook deliveries by event type and result.",
		}, []string{"event", "result"}),
		MQTTMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_mqtt_messages_total",
			Help: "MQTT messages by direction.",
		}, []string{"direction"}),
		RecorderFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptsp01_recorder_flush_total",
			Help: "History recorder flushes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.OutletVoltage, m.OutletCurrent, m.OutletPower, m.OutletEnergy, m.OutletSwitch,
		m.StripOnline, m.TelemetryTotal, m.ConnFailures, m.LoginFailures, m.CommandsTotal,
		m.HTTPRequests, m.WebhookPushes, m.MQTTMessages, m.RecorderFlushes,
	)
	return m
}

// Command 记录一次命令结果，m 为 nil 时忽略
func (m *AppMetrics) Command(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CommandsTotal.WithLabelValues(kind, result).Inc()
}

// Flush 记录一次历史写入结果，m 为 nil 时忽略
func (m *AppMetrics) Flush(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RecorderFlushes.WithLabelValues(result).Inc()
}
