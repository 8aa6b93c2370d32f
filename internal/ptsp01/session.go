// Package ptsp01 实现 PTSP01 三位智能排插的 telnet 控制台驱动：
// 登录握手、批量遥测轮询、行解析、状态缓存与断线重连。
package ptsp01

import (
	"context"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPort 设备 telnet 端口
const DefaultPort = 23

// LoginState 登录三态
type LoginState int32

const (
	LoginUnknown LoginState = iota // 握手尚未完成
	LoggedIn
	LoggedOut
)

func (s LoginState) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Phase 会话状态机阶段
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAwaitingPrompt
	PhaseLoginSent
	PhaseLoggedIn
	PhaseLoginFailed // 终态
	PhaseClosed      // 终态
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingPrompt:
		return "awaiting_prompt"
	case PhaseLoginSent:
		return "login_sent"
	case PhaseLoggedIn:
		return "logged_in"
	case PhaseLoginFailed:
		return "login_failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options 会话参数，零值字段使用默认值
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	UpdateInterval   time.Duration // 轮询间隔，默认 10s
	LoginTimeout     time.Duration // 等待提示符，默认 3s
	ReceiveInterval  time.Duration // 接收循环单次等待，默认 500ms
	IdlePollInterval time.Duration // 轮询等待空闲的检查间隔，默认 100ms
	ReconnectBackoff time.Duration // 重连间隔，默认 20s
	MaxLoginRounds   int           // 单次连接最多发送凭据次数，默认 3

	Dialer Dialer
	Sink   EventSink
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.Username == "" {
		o.Username = DefaultUsername
	}
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = 10 * time.Second
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 3 * time.Second
	}
	if o.ReceiveInterval <= 0 {
		o.ReceiveInterval = 500 * time.Millisecond
	}
	if o.IdlePollInterval <= 0 {
		o.IdlePollInterval = 100 * time.Millisecond
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = 20 * time.Second
	}
	if o.MaxLoginRounds <= 0 {
		o.MaxLoginRounds = 3
	}
	if o.Dialer == nil {
		o.Dialer = TCPDialer{}
	}
	if o.Sink == nil {
		o.Sink = NopSink{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// loginSignal 单次连接尝试的登录结果，只完成一次
type loginSignal struct {
	once sync.Once
	done chan struct{}
}

func newLoginSignal() *loginSignal { return &loginSignal{done: make(chan struct{})} }

func (l *loginSignal) resolve() { l.once.Do(func() { close(l.done) }) }

func (l *loginSignal) resolved() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Stats 会话统计
type Stats struct {
	Reconnects         int64
	ConnectionFailures int64
	ParseDrops         int64
	CommandsSent       int64
	LastError          string
	LastLoginAt        time.Time
}

// Session 与单台排插的长连接会话
type Session struct {
	opts Options
	addr string
	log  *zap.Logger
	sink EventSink

	states *StateStore
	framer LineFramer

	mu      sync.Mutex
	conn    Conn
	signal  *loginSignal
	version string
	lastErr string
	loginAt time.Time

	login loginFlag
	phase atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	polling  atomic.Bool
	pollGen  atomic.Uint64
	interval atomic.Int64

	reconnecting atomic.Bool

	reconnects   atomic.Int64
	failures     atomic.Int64
	parseDrops   atomic.Int64
	commandsSent atomic.Int64
}

type loginFlag struct{ v atomic.Int32 }

func (l *loginFlag) Load() LoginState   { return LoginState(l.v.Load()) }
func (l *loginFlag) Store(s LoginState) { l.v.Store(int32(s)) }

// New 创建会话，插座状态在此一次性建立
func New(opts Options) *Session {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:   opts,
		addr:   net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		log:    opts.Logger.With(zap.String("host", opts.Host), zap.Int("port", opts.Port)),
		sink:   opts.Sink,
		states: NewStateStore(),
		signal: newLoginSignal(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.interval.Store(int64(opts.UpdateInterval))
	return s
}

// Host 设备地址
func (s *Session) Host() string { return s.opts.Host }

// Addr host:port
func (s *Session) Addr() string { return s.addr }

// Version 固件版本（登录横幅中解析）
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// IsLoggedIn 当前登录三态
func (s *Session) IsLoggedIn() LoginState { return s.login.Load() }

// Phase 当前状态机阶段
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) setPhase(p Phase) {
	// 终态不可被覆盖
	for {
		cur := Phase(s.phase.Load())
		if cur == PhaseClosed || (cur == PhaseLoginFailed && p != PhaseClosed) {
			return
		}
		if s.phase.CompareAndSwap(int32(cur), int32(p)) {
			return
		}
	}
}

// beginAttempt 开始新的连接尝试，登录状态回到 unknown。
// 尚未完成的信号沿用给本次尝试，已在等待的调用方不受影响。
func (s *Session) beginAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signal.resolved() {
		s.signal = newLoginSignal()
	}
	s.login.Store(LoginUnknown)
}

// setLogin 更新登录状态；非 unknown 时完成当前尝试的信号
func (s *Session) setLogin(v LoginState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.login.Store(v)
	if v == LoginUnknown {
		return
	}
	if v == LoggedIn {
		s.loginAt = time.Now()
	}
	s.signal.resolve()
}

// WaitForLogin 阻塞直到连接尝试得出登录结果；
// 结果被新一轮尝试重置为 unknown 时继续等待下一轮。
func (s *Session) WaitForLogin(ctx context.Context) (bool, error) {
	for {
		s.mu.Lock()
		sig := s.signal
		s.mu.Unlock()
		select {
		case <-sig.done:
			if st := s.IsLoggedIn(); st != LoginUnknown {
				return st == LoggedIn, nil
			}
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.ctx.Done():
			return false, ErrClosed
		}
	}
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) swapConn(c Conn) Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.conn
	s.conn = c
	return old
}

func (s *Session) closeConn() {
	if old := s.swapConn(nil); old != nil {
		_ = old.Close()
	}
}

func (s *Session) recordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// write 下发一条命令，不等待回复
func (s *Session) write(cmd string) error {
	conn := s.currentConn()
	if conn == nil {
		return ErrNotLoggedIn
	}
	if err := conn.Write([]byte(cmd)); err != nil {
		return connectivity("write", err)
	}
	s.commandsSent.Add(1)
	return nil
}

// Switch 设置插座开关，随后立即查询一次以确认
func (s *Session) Switch(socket int, on bool) error {
	if !ValidSocket(socket) {
		return ErrInvalidSocket
	}
	if s.IsLoggedIn() != LoggedIn {
		return ErrNotLoggedIn
	}
	if err := s.write(SetSwitchCommand(socket, on)); err != nil {
		return err
	}
	return s.write(QueryCommand(socket, AttrSwitch))
}

// QuerySwitch 查询插座开关
func (s *Session) QuerySwitch(socket int) error {
	if !ValidSocket(socket) {
		return ErrInvalidSocket
	}
	return s.write(QueryCommand(socket, AttrSwitch))
}

// RefreshAll 执行批量脚本刷新全部 18 个值
func (s *Session) RefreshAll() error {
	if s.IsLoggedIn() != LoggedIn {
		return ErrNotLoggedIn
	}
	return s.write(RunScriptCommand())
}

// Query 查询任意 qmibtree 路径
func (s *Session) Query(path string) error {
	if s.IsLoggedIn() != LoggedIn {
		return ErrNotLoggedIn
	}
	return s.write(PathCommand(path))
}

// Outlet 插座状态副本
func (s *Session) Outlet(socket int) (OutletState, bool) { return s.states.Get(socket) }

// Outlets 全部插座状态
func (s *Session) Outlets() []OutletState { return s.states.Snapshot() }

func (s *Session) value(socket int, pick func(OutletState) float64) float64 {
	o, ok := s.states.Get(socket)
	if !ok {
		return math.NaN()
	}
	return pick(o)
}

func (s *Session) Voltage(socket int) float64 {
	return s.value(socket, func(o OutletState) float64 { return o.Voltage })
}

func (s *Session) Current(socket int) float64 {
	return s.value(socket, func(o OutletState) float64 { return o.Current })
}

func (s *Session) Power(socket int) float64 {
	return s.value(socket, func(o OutletState) float64 { return o.Power })
}

// Energy 有效电量（两个来源取大）
func (s *Session) Energy(socket int) float64 {
	return s.value(socket, OutletState.EffectiveEnergy)
}

// SwitchState 开关状态；未登录或尚未收到时 known=false
func (s *Session) SwitchState(socket int) (on bool, known bool) {
	o, ok := s.states.Get(socket)
	if !ok || !o.SwitchSeen || s.IsLoggedIn() != LoggedIn {
		return false, false
	}
	return o.Switch, true
}

// Stats 返回统计快照
func (s *Session) Stats() Stats {
	s.mu.Lock()
	lastErr, loginAt := s.lastErr, s.loginAt
	s.mu.Unlock()
	return Stats{
		Reconnects:         s.reconnects.Load(),
		ConnectionFailures: s.failures.Load(),
		ParseDrops:         s.parseDrops.Load(),
		CommandsSent:       s.commandsSent.Load(),
		LastError:          lastErr,
		LastLoginAt:        loginAt,
	}
}

// Close 关闭会话：登录置 false，停止后台循环并关闭连接。可重复调用。
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.setPhase(PhaseClosed)
	s.polling.Store(false)
	s.setLogin(LoggedOut)
	s.cancel()
	s.closeConn()
	s.log.Info("session closed")
	return nil
}

// sleep 可被 Close 打断的等待，返回 false 表示会话已关闭
func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !s.closed.Load()
	case <-s.ctx.Done():
		return false
	}
}
