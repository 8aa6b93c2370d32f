package ptsp01

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// startReceiver 为 conn 启动接收协程，连接被替换后旧协程自行退出
func (s *Session) startReceiver(conn Conn) {
	go s.receive(conn)
}

// receive 持续读取可用字节、切行并分发；读超时即为循环间隔。
// 遇到连接类错误交给重连流程，之后本协程退出。
func (s *Session) receive(conn Conn) {
	s.log.Debug("receiver started")
	defer s.log.Debug("receiver stopped")
	for !s.closed.Load() && s.IsLoggedIn() == LoggedIn && s.currentConn() == conn {
		data, err := conn.ReadAvailable(s.opts.ReceiveInterval)
		if len(data) > 0 {
			s.framer.Append(data)
			for _, line := range s.framer.Lines() {
				s.dispatch(line)
			}
		}
		if err == nil {
			continue
		}
		if s.closed.Load() || s.currentConn() != conn {
			return
		}
		if IsConnectivityError(err) {
			s.handleConnectionLoss(conn, err)
			return
		}
		s.recordError(err)
		s.sink.OnException(err)
		if !s.sleep(s.opts.ReceiveInterval) {
			return
		}
	}
}

// dispatch 处理单行，回调中的 panic 转为异常事件
func (s *Session) dispatch(line string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("ptsp01: panic handling line %q: %v", line, r)
			s.log.Error("receiver panic", zap.Error(err))
			s.sink.OnException(err)
		}
	}()
	s.onMessage(line)
}

// onMessage 解析遥测行并写入状态，每个有效值通知一次
func (s *Session) onMessage(line string) {
	t, ok := ParseTelemetry(line)
	if !ok {
		if IsTelemetryLine(line) {
			s.parseDrops.Add(1)
			s.log.Debug("drop telemetry line", zap.String("line", line))
		}
		return
	}
	if s.states.apply(t, time.Now()) {
		s.sink.OnStatusUpdate(t.Socket, t.Attr)
	}
}
