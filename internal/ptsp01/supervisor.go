package ptsp01

import (
	"fmt"

	"go.uber.org/zap"
)

// handleConnectionLoss 同一时刻只允许一个重连流程
func (s *Session) handleConnectionLoss(conn Conn, cause error) {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.closeConnIf(conn)
	s.superviseReconnect(cause)
}

// superviseReconnect 断线处理：
// 登录置 false，通知一次连接失败并对全部属性发出状态更新（使上层显示不可用），
// 然后按固定间隔重连直到成功、认证失败或会话关闭。
func (s *Session) superviseReconnect(cause error) {
	released := false
	defer func() {
		if !released {
			s.reconnecting.Store(false)
		}
	}()

	s.setLogin(LoggedOut)
	s.setPhase(PhaseDisconnected)
	s.failures.Add(1)
	s.recordError(cause)
	s.log.Warn("connection lost", zap.Error(cause))

	s.sink.OnConnectionFailure(cause)
	for socket := 1; socket <= SocketCount; socket++ {
		for _, attr := range AllAttributes {
			s.sink.OnStatusUpdate(socket, attr)
		}
	}

	for attempt := 1; ; attempt++ {
		if s.closed.Load() {
			return
		}
		conn, err := s.tryReconnect()
		if err == nil {
			s.reconnects.Add(1)
			s.log.Info("reconnected", zap.Int("attempt", attempt))
			// 先释放标记再启动新接收协程，新连接上的断线才能再次触发重连
			s.reconnecting.Store(false)
			released = true
			s.startReceiver(conn)
			return
		}
		if IsAuthenticationError(err) {
			s.log.Error("reconnect stopped: authentication failed", zap.Error(err))
			return
		}
		s.log.Warn("reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", s.opts.ReconnectBackoff),
			zap.Error(err))
		if !s.sleep(s.opts.ReconnectBackoff) {
			return
		}
	}
}

// tryReconnect 单次重连，panic 视为一次失败
func (s *Session) tryReconnect() (conn Conn, err error) {
	defer func() {
		if r := recover(); r != nil {
			conn, err = nil, fmt.Errorf("ptsp01: reconnect panic: %v", r)
		}
	}()
	s.closeConn()
	return s.dialAndLogin(s.ctx)
}
