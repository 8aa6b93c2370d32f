// Package hub 将单台排插的会话包装为可供 API、存储与消息桥接使用的设备对象。
package hub

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/ptsp01-gateway/internal/config"
	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

const (
	Manufacturer = "BoomSense"
	Model        = "PTSP01"

	// DefaultInterval Hub 默认轮询间隔
	DefaultInterval = 30 * time.Second
)

var (
	// ErrAuthFailed 密码错误，需要修改配置
	ErrAuthFailed = errors.New("hub: authentication failed")
	// ErrNotReady 暂时无法连接，稍后重试
	ErrNotReady = errors.New("hub: strip not ready")
	// ErrThrottled 开关命令超出限速且 ctx 不允许等待
	ErrThrottled = errors.New("hub: switch throttled")
)

// OutletID <strip>_<socket>
func OutletID(stripID string, socket int) string {
	return fmt.Sprintf("%s_%d", stripID, socket)
}

// Options Hub 参数
type Options struct {
	ID          string
	Name        string
	Session     ptsp01.Options
	Interval    time.Duration
	SwitchRate  rate.Limit
	SwitchBurst int
	QueueSize   int
	Logger      *zap.Logger
}

// OptionsFromConfig 由配置生成 Hub 参数
func OptionsFromConfig(c config.StripConfig, logger *zap.Logger) Options {
	return Options{
		ID:   c.ID,
		Name: c.Name,
		Session: ptsp01.Options{
			Host:             c.Host,
			Port:             c.Port,
			Password:         c.Password,
			UpdateInterval:   c.Interval,
			LoginTimeout:     c.LoginTimeout,
			ReconnectBackoff: c.ReconnectBackoff,
		},
		Interval:    c.Interval,
		SwitchRate:  rate.Limit(c.SwitchRate),
		SwitchBurst: c.SwitchBurst,
		Logger:      logger,
	}
}

// Hub 单台排插
type Hub struct {
	id      string
	name    string
	opts    Options
	log     *zap.Logger
	session *ptsp01.Session
	limiter *rate.Limiter
	outlets []*Outlet

	lmu       sync.RWMutex
	listeners []Listener

	events  chan func(Listener)
	dropped atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	online     atomic.Bool
	authFailed atomic.Bool
	exceptions atomic.Int64
}

// New 创建 Hub（不建立连接）
func New(opts Options, listeners ...Listener) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ID == "" {
		opts.ID = config.StripID(opts.Session.Host)
	}
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SwitchRate <= 0 {
		opts.SwitchRate = 2
	}
	if opts.SwitchBurst <= 0 {
		opts.SwitchBurst = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	h := &Hub{
		id:        opts.ID,
		name:      opts.Name,
		opts:      opts,
		log:       opts.Logger.With(zap.String("strip", opts.ID)),
		limiter:   rate.NewLimiter(opts.SwitchRate, opts.SwitchBurst),
		listeners: append([]Listener(nil), listeners...),
		events:    make(chan func(Listener), opts.QueueSize),
		done:      make(chan struct{}),
	}
	so := opts.Session
	so.Sink = h
	so.UpdateInterval = opts.Interval
	so.Logger = h.log
	h.session = ptsp01.New(so)
	for socket := 1; socket <= ptsp01.SocketCount; socket++ {
		h.outlets = append(h.outlets, &Outlet{hub: h, socket: socket})
	}

	h.wg.Add(1)
	go h.dispatchLoop()
	return h
}

func (h *Hub) ID() string                    { return h.id }
func (h *Hub) Name() string                  { return h.name }
func (h *Hub) Host() string                  { return h.opts.Session.Host }
func (h *Hub) Version() string               { return h.session.Version() }
func (h *Hub) Session() *ptsp01.Session      { return h.session }
func (h *Hub) Interval() time.Duration       { return h.opts.Interval }
func (h *Hub) DroppedEvents() int64          { return h.dropped.Load() }
func (h *Hub) Exceptions() int64             { return h.exceptions.Load() }
func (h *Hub) AuthFailed() bool              { return h.authFailed.Load() }
func (h *Hub) LoginState() ptsp01.LoginState { return h.session.IsLoggedIn() }

// Online 会话处于登录状态
func (h *Hub) Online() bool { return h.session.IsLoggedIn() == ptsp01.LoggedIn }

// Outlets 三个插座
func (h *Hub) Outlets() []*Outlet { return h.outlets }

// Outlet 按编号取插座
func (h *Hub) Outlet(socket int) (*Outlet, bool) {
	if !ptsp01.ValidSocket(socket) {
		return nil, false
	}
	return h.outlets[socket-1], true
}

// AddListener 追加订阅者
func (h *Hub) AddListener(l Listener) {
	h.lmu.Lock()
	h.listeners = append(h.listeners, l)
	h.lmu.Unlock()
}

// Setup 启动轮询并连接，等待登录结果
func (h *Hub) Setup(ctx context.Context) error {
	if err := h.session.StartPolling(h.opts.Interval); err != nil && !errors.Is(err, ptsp01.ErrAlreadyPolling) {
		return err
	}
	if err := h.session.Connect(ctx); err != nil {
		if ptsp01.IsAuthenticationError(err) {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	ok, err := h.session.WaitForLogin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if !ok {
		return ErrNotReady
	}
	h.authFailed.Store(false)
	h.markOnline()
	return nil
}

// Run 反复尝试 Setup 直到成功、认证失败或 ctx 结束
func (h *Hub) Run(ctx context.Context) error {
	backoff := h.opts.Session.ReconnectBackoff
	if backoff <= 0 {
		backoff = 20 * time.Second
	}
	for attempt := 1; ; attempt++ {
		err := h.Setup(ctx)
		if err == nil || errors.Is(err, ErrAuthFailed) || errors.Is(err, ptsp01.ErrClosed) {
			return err
		}
		h.log.Warn("strip not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-h.done:
			t.Stop()
			return ptsp01.ErrClosed
		case <-t.C:
		}
	}
}

// Refresh 立即执行一次批量刷新
func (h *Hub) Refresh() error { return h.session.RefreshAll() }

func (h *Hub) switchOutlet(ctx context.Context, socket int, on bool) error {
	if !ptsp01.ValidSocket(socket) {
		return ptsp01.ErrInvalidSocket
	}
	if !h.Online() {
		return ptsp01.ErrNotLoggedIn
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrThrottled, err)
	}
	h.log.Info("switch outlet", zap.Int("socket", socket), zap.Bool("on", on))
	return h.session.Switch(socket, on)
}

// OnStatusUpdate 实现 ptsp01.EventSink
func (h *Hub) OnStatusUpdate(socket int, attr ptsp01.Attribute) {
	state, ok := h.session.Outlet(socket)
	if !ok {
		return
	}
	online := h.Online()
	if online {
		h.markOnline()
	}
	_, known := h.session.SwitchState(socket)
	ev := OutletEvent{
		StripID:     h.id,
		Socket:      socket,
		Attr:        attr,
		State:       state,
		SwitchKnown: known,
		Online:      online,
		At:          time.Now(),
	}
	h.enqueue(func(l Listener) { l.OnOutletUpdate(ev) })
}

// OnConnectionFailure 实现 ptsp01.EventSink
func (h *Hub) OnConnectionFailure(err error) {
	h.online.Store(false)
	h.publishAvailability(Offline, err)
}

// OnLoginFailure 实现 ptsp01.EventSink
func (h *Hub) OnLoginFailure(err error) {
	h.online.Store(false)
	h.authFailed.Store(true)
	h.publishAvailability(AuthFailed, err)
}

// OnException 实现 ptsp01.EventSink
func (h *Hub) OnException(err error) {
	h.exceptions.Add(1)
	h.log.Error("session exception", zap.Error(err))
}

// markOnline 离线到在线的转换只通知一次
func (h *Hub) markOnline() {
	if h.online.CompareAndSwap(false, true) {
		h.publishAvailability(Online, nil)
	}
}

func (h *Hub) publishAvailability(kind AvailabilityKind, err error) {
	ev := AvailabilityEvent{
		StripID: h.id,
		Host:    h.Host(),
		Version: h.session.Version(),
		Kind:    kind,
		Err:     err,
		At:      time.Now(),
	}
	h.log.Info("availability changed", zap.Stringer("kind", kind), zap.Error(err))
	h.enqueue(func(l Listener) { l.OnAvailability(ev) })
}

// enqueue 非阻塞投递，队列满时丢弃并计数
func (h *Hub) enqueue(fn func(Listener)) {
	if h.closed.Load() {
		return
	}
	select {
	case h.events <- fn:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			h.log.Warn("event queue full, dropping", zap.Int64("dropped", n))
		}
	}
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case fn := <-h.events:
			h.deliver(fn)
		case <-h.done:
			// 排空剩余事件
			for {
				select {
				case fn := <-h.events:
					h.deliver(fn)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(fn func(Listener)) {
	h.lmu.RLock()
	ls := h.listeners
	h.lmu.RUnlock()
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Error("listener panic", zap.Any("panic", r))
				}
			}()
			fn(l)
		}()
	}
}

// Close 关闭会话并停止事件分发
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := h.session.Close()
	close(h.done)
	h.wg.Wait()
	return err
}

// OutletStatus 插座状态（NaN 以 nil 表示，便于 JSON 输出）
type OutletStatus struct {
	ID        string    `json:"id" yaml:"id"`
	Socket    int       `json:"socket" yaml:"socket"`
	On        *bool     `json:"on" yaml:"on"`
	Voltage   *float64  `json:"voltage" yaml:"voltage"`
	Current   *float64  `json:"current" yaml:"current"`
	Power     *float64  `json:"power" yaml:"power"`
	Energy    *float64  `json:"energy" yaml:"energy"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Status 排插状态汇总
type Status struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Host         string         `json:"host" yaml:"host"`
	Manufacturer string         `json:"manufacturer" yaml:"manufacturer"`
	Model        string         `json:"model" yaml:"model"`
	Version      string         `json:"version" yaml:"version"`
	Online       bool           `json:"online" yaml:"online"`
	LoginState   string         `json:"login_state" yaml:"login_state"`
	Phase        string         `json:"phase" yaml:"phase"`
	Polling      bool           `json:"polling" yaml:"polling"`
	Interval     string         `json:"interval" yaml:"interval"`
	Reconnects   int64          `json:"reconnects" yaml:"reconnects"`
	LastError    string         `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Outlets      []OutletStatus `json:"outlets" yaml:"outlets"`
}

func optional(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// Status 当前状态快照
func (h *Hub) Status() Status {
	stats := h.session.Stats()
	st := Status{
		ID:           h.id,
		Name:         h.name,
		Host:         h.Host(),
		Manufacturer: Manufacturer,
		Model:        Model,
		Version:      h.session.Version(),
		Online:       h.Online(),
		LoginState:   h.session.IsLoggedIn().String(),
		Phase:        h.session.Phase().String(),
		Polling:      h.session.IsPolling(),
		Interval:     h.session.Interval().String(),
		Reconnects:   stats.Reconnects,
		LastError:    stats.LastError,
	}
	for _, o := range h.outlets {
		st.Outlets = append(st.Outlets, o.Status())
	}
	return st
}
