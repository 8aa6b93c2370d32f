package ptsp01

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartPolling 启动周期刷新，interval<=0 时沿用当前间隔
func (s *Session) StartPolling(interval time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if interval > 0 {
		s.interval.Store(int64(interval))
	}
	if !s.polling.CompareAndSwap(false, true) {
		return ErrAlreadyPolling
	}
	gen := s.pollGen.Add(1)
	go s.pollLoop(gen)
	s.log.Info("polling started", zap.Duration("interval", s.Interval()))
	return nil
}

// StopPolling 停止轮询，正在等待中的循环在下次检查时退出
func (s *Session) StopPolling() {
	if s.polling.CompareAndSwap(true, false) {
		s.log.Info("polling stopped")
	}
}

// IsPolling 是否处于轮询中
func (s *Session) IsPolling() bool { return s.polling.Load() }

// Interval 当前轮询间隔
func (s *Session) Interval() time.Duration { return time.Duration(s.interval.Load()) }

func (s *Session) pollActive(gen uint64) bool {
	return !s.closed.Load() && s.polling.Load() && s.pollGen.Load() == gen
}

func (s *Session) pollLoop(gen uint64) {
	for s.pollActive(gen) {
		if !s.waitIdle(gen) {
			return
		}
		if err := s.RefreshAll(); err != nil && !errors.Is(err, ErrNotLoggedIn) {
			s.log.Debug("refresh failed", zap.Error(err))
		}
		if !s.sleep(s.Interval()) {
			return
		}
	}
}

// waitIdle 等待已登录且缓冲以提示符结尾（上一批回复已读完）
func (s *Session) waitIdle(gen uint64) bool {
	for {
		if !s.pollActive(gen) {
			return false
		}
		if s.IsLoggedIn() == LoggedIn && strings.HasSuffix(s.framer.Pending(), PromptMarker) {
			return true
		}
		if !s.sleep(s.opts.IdlePollInterval) {
			return false
		}
	}
}
