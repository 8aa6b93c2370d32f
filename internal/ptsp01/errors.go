package ptsp01

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrNotLoggedIn 会话未登录时拒绝下发控制命令
	ErrNotLoggedIn = errors.New("ptsp01: not logged in")
	// ErrInvalidSocket 插座编号超出 1..3
	ErrInvalidSocket = errors.New("ptsp01: invalid socket")
	// ErrAlreadyPolling 重复启动轮询
	ErrAlreadyPolling = errors.New("ptsp01: polling already started")
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("ptsp01: session closed")
)

// AuthenticationError 密码错误（终态，不重试）
type AuthenticationError struct {
	Host string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ptsp01: login incorrect for %s", e.Host)
}

// ConnectivityError 连接类错误（可重试）
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return "ptsp01: " + e.Op
	}
	return fmt.Sprintf("ptsp01: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsAuthenticationError 判断是否为认证失败
func IsAuthenticationError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsConnectivityError 判断错误是否属于连接中断类：
// EOF、连接重置、管道破裂、连接关闭以及任何 net.Error。
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func connectivity(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectivityError{Op: op, Err: err}
}
