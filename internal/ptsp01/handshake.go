package ptsp01

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Connect 建立连接并完成登录握手，成功后启动接收循环。
// 密码错误返回 *AuthenticationError，其余失败均为连接类错误。
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.dialAndLogin(ctx)
	if err != nil {
		return err
	}
	s.startReceiver(conn)
	return nil
}

// dialAndLogin 拨号、读取横幅并驱动登录，不启动接收循环
func (s *Session) dialAndLogin(ctx context.Context) (Conn, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.beginAttempt()
	// 显式重试允许离开认证失败态
	s.phase.CompareAndSwap(int32(PhaseLoginFailed), int32(PhaseConnecting))
	s.setPhase(PhaseConnecting)
	s.log.Debug("connecting")

	// Close 同时中止拨号
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	conn, err := s.opts.Dialer.Dial(dialCtx, s.addr)
	if err != nil {
		if s.closed.Load() {
			return nil, ErrClosed
		}
		err = connectivity("dial", err)
		s.failAttempt(err)
		return nil, err
	}
	if old := s.swapConn(conn); old != nil {
		_ = old.Close()
	}
	if s.closed.Load() {
		s.closeConnIf(conn)
		return nil, ErrClosed
	}

	s.setPhase(PhaseAwaitingPrompt)
	banner, err := conn.ReadUntil(s.opts.LoginTimeout, PromptMarker, LoginMarker)
	if err != nil {
		if s.closed.Load() {
			s.closeConnIf(conn)
			return nil, ErrClosed
		}
		err = connectivity("read banner", err)
		s.abandon(conn, err)
		return nil, err
	}
	if err := s.onConnect(conn, banner, 0); err != nil {
		if errors.Is(err, ErrClosed) || s.closed.Load() {
			s.closeConnIf(conn)
			return nil, ErrClosed
		}
		if IsAuthenticationError(err) {
			s.closeConnIf(conn)
			return nil, err
		}
		s.abandon(conn, err)
		return nil, err
	}
	return conn, nil
}

// onConnect 根据横幅推进登录：
// 提示符结尾即登录成功；先检查失败标记，再检查登录提示并发送凭据。
func (s *Session) onConnect(conn Conn, banner string, round int) error {
	switch {
	case strings.HasSuffix(banner, PromptMarker):
		s.mu.Lock()
		if v := parseVersion(banner); v != "" {
			s.version = v
		}
		version := s.version
		s.mu.Unlock()

		s.framer.Reset(PromptMarker)
		if err := conn.Write([]byte(InstallScriptCommand())); err != nil {
			return connectivity("install script", err)
		}
		if s.closed.Load() {
			return ErrClosed
		}
		s.setPhase(PhaseLoggedIn)
		s.setLogin(LoggedIn)
		// 与 Close 交错时撤回登录结果
		if s.closed.Load() {
			s.setLogin(LoggedOut)
			return ErrClosed
		}
		s.log.Info("logged in", zap.String("version", version))
		return nil

	case strings.Contains(banner, FailureMarker):
		err := &AuthenticationError{Host: s.opts.Host}
		s.setPhase(PhaseLoginFailed)
		s.setLogin(LoggedOut)
		s.recordError(err)
		s.log.Error("login rejected", zap.Error(err))
		s.sink.OnLoginFailure(err)
		return err

	case strings.Contains(banner, LoginMarker):
		if round >= s.opts.MaxLoginRounds {
			return &ConnectivityError{Op: "login", Err: fmt.Errorf("login prompt repeated %d times", round)}
		}
		s.setPhase(PhaseLoginSent)
		if err := conn.Write([]byte(LoginCommand(s.opts.Username, s.opts.Password))); err != nil {
			return connectivity("send credentials", err)
		}
		next, err := conn.ReadUntil(s.opts.LoginTimeout, PromptMarker, LoginMarker)
		if err != nil {
			return connectivity("read login reply", err)
		}
		return s.onConnect(conn, next, round+1)

	default:
		return &ConnectivityError{Op: "handshake", Err: errors.New("unrecognised banner " + quoteTail(banner, 64))}
	}
}

// failAttempt 本次尝试以失败告终
func (s *Session) failAttempt(err error) {
	s.recordError(err)
	s.setPhase(PhaseDisconnected)
	s.setLogin(LoggedOut)
	s.log.Warn("connect failed", zap.Error(err))
}

func (s *Session) abandon(conn Conn, err error) {
	s.closeConnIf(conn)
	s.failAttempt(err)
}

// closeConnIf 仅在 conn 仍为当前连接时关闭
func (s *Session) closeConnIf(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// parseVersion 取版本标记行中第一对括号内的文本
func parseVersion(banner string) string {
	for _, line := range strings.Split(banner, "\n") {
		if !strings.Contains(line, VersionMarker) {
			continue
		}
		open := strings.IndexByte(line, '(')
		if open < 0 {
			return ""
		}
		end := strings.IndexByte(line[open+1:], ')')
		if end < 0 {
			return ""
		}
		return strings.TrimSpace(line[open+1 : open+1+end])
	}
	return ""
}

func quoteTail(s string, n int) string {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return fmt.Sprintf("%q", s)
}
