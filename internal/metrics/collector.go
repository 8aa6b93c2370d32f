package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
)

// HubSource 提供采集时的排插列表
type HubSource interface {
	List() []*hub.Hub
}

// StripCollector 在抓取时读取会话计数器
type StripCollector struct {
	source HubSource

	exceptions *prometheus.Desc
	reconnects *prometheus.Desc
	parseDrops *prometheus.Desc
	commands   *prometheus.Desc
	dropped    *prometheus.Desc
	polling    *prometheus.Desc
}

// NewStripCollector 创建排插会话采集器
func NewStripCollector(source HubSource) *StripCollector {
	strip := []string{"strip"}
	return &StripCollector{
		source:     source,
		exceptions: prometheus.NewDesc("ptsp01_exceptions_total", "Unexpected errors raised inside the session.", strip, nil),
		reconnects: prometheus.NewDesc("ptsp01_reconnects_total", "Successful reconnections after a connection loss.", strip, nil),
		parseDrops: prometheus.NewDesc("ptsp01_parse_drops_total", "Telemetry lines that could not be parsed.", strip, nil),
		commands:   prometheus.NewDesc("ptsp01_session_commands_total", "Command lines written to the strip.", strip, nil),
		dropped:    prometheus.NewDesc("ptsp01_dropped_events_total", "Hub events dropped because the listener queue was full.", strip, nil),
		polling:    prometheus.NewDesc("ptsp01_strip_polling", "Whether the periodic refresh is running.", strip, nil),
	}
}

// Describe 实现 prometheus.Collector
func (c *StripCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.exceptions
	ch <- c.reconnects
	ch <- c.parseDrops
	ch <- c.commands
	ch <- c.dropped
	ch <- c.polling
}

// Collect 实现 prometheus.Collector
func (c *StripCollector) Collect(ch chan<- prometheus.Metric) {
	for _, h := range c.source.List() {
		id := h.ID()
		st := h.Session().Stats()
		polling := 0.0
		if h.Session().IsPolling() {
			polling = 1
		}
		ch <- prometheus.MustNewConstMetric(c.exceptions, prometheus.CounterValue, float64(h.Exceptions()), id)
		ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(st.Reconnects), id)
		ch <- prometheus.MustNewConstMetric(c.parseDrops, prometheus.CounterValue, float64(st.ParseDrops), id)
		ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(st.CommandsSent), id)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(h.DroppedEvents()), id)
		ch <- prometheus.MustNewConstMetric(c.polling, prometheus.GaugeValue, polling, id)
	}
}
