// Package mqtt 将排插状态发布到 MQTT，并接收插座开关命令。
//
// 主题布局（prefix 默认 ptsp01）:
//
//	<prefix>/bridge/availability        online|offline（保留，遗嘱 offline）
//	<prefix>/<strip>/availability       online|offline
//	<prefix>/<strip>/<socket>/<field>   数值；switch 为 ON|OFF；未知为 unknown
//	<prefix>/<strip>/<socket>/switch/set  ON|OFF|1|0|true|false
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/hub"
	"github.com/taoyao-code/ptsp01-gateway/internal/metrics"
)

const (
	DefaultTopicPrefix = "ptsp01"

	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadUnknown = "unknown"

	commandTimeout = 5 * time.Second
)

// ErrConnectTimeout 连接 broker 超时
var ErrConnectTimeout = errors.New("mqtt: connect timeout")

// StripSource 排插查找（hub.Manager 满足）
type StripSource interface {
	Get(id string) (*hub.Hub, bool)
	List() []*hub.Hub
}

// Bridge MQTT 桥接，实现 hub.Listener
type Bridge struct {
	client   paho.Client
	strips   StripSource
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

func topicPrefix(cfg config.MQTTConfig) string {
	p := strings.Trim(cfg.TopicPrefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// New 按配置创建桥接（尚未连接）
func New(cfg config.MQTTConfig, strips StripSource, m *metrics.AppMetrics, logger *zap.Logger) *Bridge {
	b := newBridge(cfg, strips, m, logger)
	b.client = paho.NewClient(b.clientOptions(cfg))
	return b
}

// NewWithClient 使用已有客户端，onConnect 需由调用方触发
func NewWithClient(client paho.Client, cfg config.MQTTConfig, strips StripSource, m *metrics.AppMetrics, logger *zap.Logger) *Bridge {
	b := newBridge(cfg, strips, m, logger)
	b.client = client
	return b
}

func newBridge(cfg config.MQTTConfig, strips StripSource, m *metrics.AppMetrics, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		strips:   strips,
		prefix:   topicPrefix(cfg),
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  timeout,
		metrics:  m,
		log:      logger.With(zap.String("component", "mqtt")),
	}
}

func (b *Bridge) clientOptions(cfg config.MQTTConfig) *paho.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ptsp01-" + uuid.NewString()[:8]
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetConnectTimeout(b.timeout).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetWill(b.bridgeTopic(), payloadOffline, 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.connectLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return opts
}

// Start 连接 broker，订阅在连接回调中完成
func (b *Bridge) Start(ctx context.Context) error {
	token := b.client.Connect()
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.timeout):
		return ErrConnectTimeout
	case <-done:
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close 发布离线并断开
func (b *Bridge) Close() {
	if b.client.IsConnected() {
		b.client.Publish(b.bridgeTopic(), 1, true, payloadOffline).WaitTimeout(time.Second)
	}
	b.client.Disconnect(250)
}

func (b *Bridge) bridgeTopic() string {
	return b.prefix + "/bridge/availability"
}

// AvailabilityTopic <prefix>/<strip>/availability
func (b *Bridge) AvailabilityTopic(stripID string) string {
	return fmt.Sprintf("%s/%s/availability", b.prefix, stripID)
}

// StateTopic <prefix>/<strip>/<socket>/<field>
func (b *Bridge) StateTopic(stripID string, socket int, field string) string {
	return fmt.Sprintf("%s/%s/%d/%s", b.prefix, stripID, socket, field)
}

// CommandFilter 开关命令订阅过滤器
func (b *Bridge) CommandFilter() string {
	return b.prefix + "/+/+/switch/set"
}

func (b *Bridge) onConnect(c paho.Client) {
	b.log.Info("mqtt connected")
	if token := c.Subscribe(b.CommandFilter(), b.qos, b.handleCommand); token.Wait() && token.Error() != nil {
		b.log.Error("mqtt subscribe failed", zap.String("filter", b.CommandFilter()), zap.Error(token.Error()))
		return
	}
	b.publish(b.bridgeTopic(), true, payloadOnline)
	// 重连后补发当前可用性
	for _, h := range b.strips.List() {
		b.publish(b.AvailabilityTopic(h.ID()), true, availabilityPayload(h.Online()))
	}
}

func (b *Bridge) connectLost(_ paho.Client, err error) {
	b.log.Warn("mqtt connection lost", zap.Error(err))
}

func (b *Bridge) publish(topic string, retained bool, payload string) {
	if !b.client.IsConnected() {
		return
	}
	b.client.Publish(topic, b.qos, retained, payload)
	if b.metrics != nil {
		b.metrics.MQTTMessages.WithLabelValues("out").Inc()
	}
}

func availabilityPayload(online bool) string {
	if online {
		return payloadOnline
	}
	return payloadOffline
}

// statePayload 数值按最短形式输出，开关为 ON/OFF
func statePayload(ev hub.OutletEvent) string {
	v := ev.Reading()
	if v == nil {
		return payloadUnknown
	}
	if ev.Field() == "switch" {
		if *v != 0 {
			return "ON"
		}
		return "OFF"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// OnOutletUpdate 实现 hub.Listener
func (b *Bridge) OnOutletUpdate(ev hub.OutletEvent) {
	field := ev.Field()
	if field == "" {
		return
	}
	b.publish(b.StateTopic(ev.StripID, ev.Socket, field), b.retained, statePayload(ev))
}

// OnAvailability 实现 hub.Listener
func (b *Bridge) OnAvailability(ev hub.AvailabilityEvent) {
	b.publish(b.AvailabilityTopic(ev.StripID), true, availabilityPayload(ev.Kind == hub.Online))
}

// parseCommandTopic <prefix>/<strip>/<socket>/switch/set
func (b *Bridge) parseCommandTopic(topic string) (string, int, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[2] != "switch" || parts[3] != "set" {
		return "", 0, false
	}
	socket, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], socket, true
}

// ParseSwitchPayload 解析 ON/OFF/1/0/true/false，大小写不敏感
func ParseSwitchPayload(p []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(p))) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid switch payload %q", p)
	}
}

func (b *Bridge) handleCommand(_ paho.Client, msg paho.Message) {
	msg.Ack()
	if b.metrics != nil {
		b.metrics.MQTTMessages.WithLabelValues("in").Inc()
	}
	log := b.log.With(zap.String("topic", msg.Topic()))

	stripID, socket, ok := b.parseCommandTopic(msg.Topic())
	if !ok {
		log.Warn("mqtt command topic not recognised")
		return
	}
	on, err := ParseSwitchPayload(msg.Payload())
	if err != nil {
		log.Warn("mqtt command rejected", zap.Error(err))
		return
	}
	h, ok := b.strips.Get(stripID)
	if !ok {
		log.Warn("mqtt command for unknown strip")
		return
	}
	o, ok := h.Outlet(socket)
	if !ok {
		log.Warn("mqtt command for invalid socket", zap.Int("socket", socket))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	err = o.Set(ctx, on)
	b.metrics.Command("mqtt_switch", err)
	if err != nil {
		log.Warn("mqtt switch failed", zap.Error(err))
		return
	}
	log.Info("mqtt switch", zap.String("outlet", o.ID()), zap.Bool("on", on))
}
