package ptsp01

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Conn 设备控制台连接。Write 只负责入队，不等待设备回复。
type Conn interface {
	// Write 异步写入，保持调用顺序
	Write(b []byte) error
	// ReadAvailable 在 wait 内读取当前可用字节；超时无数据返回 nil, nil
	ReadAvailable(wait time.Duration) ([]byte, error)
	// ReadUntil 读取直到出现任一 marker 或超时，超时不视为错误
	ReadUntil(timeout time.Duration, markers ...string) (string, error)
	Close() error
}

// Dialer 建立到设备的连接
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// TCPDialer 基于 net.Dialer 的 telnet 连接
type TCPDialer struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration // 写队列等待与单次写超时
	QueueSize    int
}

// Dial 建立 TCP 连接并启动写循环
func (d TCPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	to := d.DialTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	nd := net.Dialer{Timeout: to, KeepAlive: 30 * time.Second}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, connectivity("dial "+addr, err)
	}
	return newTelnetConn(c, d.WriteTimeout, d.QueueSize), nil
}

// telnetConn 为 net.Conn 提供写队列与 telnet 选项过滤
type telnetConn struct {
	c            net.Conn
	writeC       chan []byte
	doneC        chan struct{}
	closed       int32
	closeOnce    sync.Once
	writeTimeout time.Duration

	readMu  sync.Mutex
	iac     iacFilter
	pending []byte
	buf     []byte
}

func newTelnetConn(c net.Conn, writeTimeout time.Duration, queue int) *telnetConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if queue <= 0 {
		queue = 64
	}
	tc := &telnetConn{
		c:            c,
		writeC:       make(chan []byte, queue),
		doneC:        make(chan struct{}),
		writeTimeout: writeTimeout,
		buf:          make([]byte, 4096),
	}
	go tc.writeLoop()
	return tc
}

// writeLoop 串行写出队列中的数据，写失败时关闭连接以触发读端错误
func (tc *telnetConn) writeLoop() {
	for {
		select {
		case <-tc.doneC:
			return
		case msg := <-tc.writeC:
			_ = tc.c.SetWriteDeadline(time.Now().Add(tc.writeTimeout))
			if _, err := tc.c.Write(msg); err != nil {
				_ = tc.Close()
				return
			}
		}
	}
}

func (tc *telnetConn) Write(b []byte) error {
	if atomic.LoadInt32(&tc.closed) == 1 {
		return connectivity("write", net.ErrClosed)
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	t := time.NewTimer(tc.writeTimeout)
	defer t.Stop()
	select {
	case tc.writeC <- dup:
		return nil
	case <-tc.doneC:
		return connectivity("write", net.ErrClosed)
	case <-t.C:
		return connectivity("write", errors.New("write queue timeout"))
	}
}

// reply telnet 协商应答，队列满时丢弃
func (tc *telnetConn) reply(b []byte) {
	select {
	case tc.writeC <- b:
	default:
	}
}

// readOnce 读取一次并过滤 IAC 序列；超时返回 nil, nil
func (tc *telnetConn) readOnce(deadline time.Time) ([]byte, error) {
	_ = tc.c.SetReadDeadline(deadline)
	n, err := tc.c.Read(tc.buf)
	var data []byte
	if n > 0 {
		var replies []byte
		data, replies = tc.iac.filter(tc.buf[:n])
		if len(replies) > 0 {
			tc.reply(replies)
		}
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return data, nil
		}
		return data, connectivity("read", err)
	}
	return data, nil
}

func (tc *telnetConn) ReadAvailable(wait time.Duration) ([]byte, error) {
	tc.readMu.Lock()
	defer tc.readMu.Unlock()
	if len(tc.pending) > 0 {
		out := tc.pending
		tc.pending = nil
		return out, nil
	}
	return tc.readOnce(time.Now().Add(wait))
}

func (tc *telnetConn) ReadUntil(timeout time.Duration, markers ...string) (string, error) {
	tc.readMu.Lock()
	defer tc.readMu.Unlock()
	deadline := time.Now().Add(timeout)
	acc := tc.pending
	tc.pending = nil
	for {
		if end := markerEnd(string(acc), markers); end >= 0 {
			if end < len(acc) {
				tc.pending = append([]byte(nil), acc[end:]...)
			}
			return string(acc[:end]), nil
		}
		if !time.Now().Before(deadline) {
			return string(acc), nil
		}
		data, err := tc.readOnce(deadline)
		acc = append(acc, data...)
		if err != nil {
			return string(acc), err
		}
	}
}

func (tc *telnetConn) Close() error {
	var err error
	tc.closeOnce.Do(func() {
		atomic.StoreInt32(&tc.closed, 1)
		close(tc.doneC)
		err = tc.c.Close()
	})
	return err
}

// markerEnd 返回最早出现的 marker 的结束位置，未找到返回 -1
func markerEnd(s string, markers []string) int {
	best := -1
	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(s, m); i >= 0 && (best < 0 || i+len(m) < best) {
			best = i + len(m)
		}
	}
	return best
}
