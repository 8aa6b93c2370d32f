package ptsp01

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const testBanner = "\r\n\r\nBusyBox v1.22.1 (2019-05-01) built-in shell (ash)\r\n" +
	" ATTITUDE ADJUSTMENT (bleeding edge, r42)\r\n" +
	" -----------------------------------------------------\r\n"

// fakeConn 内存连接：测试通过 feed 注入设备输出，Write 被记录并交给 onWrite
type fakeConn struct {
	mu      sync.Mutex
	in      []byte
	writes  []string
	closed  bool
	readErr error
	notify  chan struct{}
	onWrite func(c *fakeConn, cmd string)
}

func newFakeConn(onWrite func(c *fakeConn, cmd string)) *fakeConn {
	return &fakeConn{notify: make(chan struct{}, 1), onWrite: onWrite}
}

func (c *fakeConn) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *fakeConn) feed(s string) {
	c.mu.Lock()
	c.in = append(c.in, s...)
	c.mu.Unlock()
	c.signal()
}

// fail 让后续读取返回 err
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.signal()
}

func (c *fakeConn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) resetWrites() {
	c.mu.Lock()
	c.writes = nil
	c.mu.Unlock()
}

func (c *fakeConn) count(cmd string) int {
	n := 0
	for _, w := range c.Writes() {
		if w == cmd {
			n++
		}
	}
	return n
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Write(b []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectivityError{Op: "write", Err: net.ErrClosed}
	}
	c.writes = append(c.writes, string(b))
	cb := c.onWrite
	c.mu.Unlock()
	if cb != nil {
		cb(c, string(b))
	}
	return nil
}

func (c *fakeConn) take() ([]byte, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) > 0 {
		out := c.in
		c.in = nil
		return out, nil, true
	}
	if c.readErr != nil {
		return nil, c.readErr, true
	}
	if c.closed {
		return nil, &ConnectivityError{Op: "read", Err: net.ErrClosed}, true
	}
	return nil, nil, false
}

func (c *fakeConn) ReadAvailable(wait time.Duration) ([]byte, error) {
	t := time.NewTimer(wait)
	defer t.Stop()
	for {
		if data, err, ok := c.take(); ok {
			return data, err
		}
		select {
		case <-c.notify:
		case <-t.C:
			return nil, nil
		}
	}
}

func (c *fakeConn) ReadUntil(timeout time.Duration, markers ...string) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	var acc []byte
	for {
		data, err, ok := c.take()
		acc = append(acc, data...)
		if end := markerEnd(string(acc), markers); end >= 0 {
			if end < len(acc) {
				c.mu.Lock()
				c.in = append(append([]byte(nil), acc[end:]...), c.in...)
				c.mu.Unlock()
			}
			return string(acc[:end]), nil
		}
		if err != nil {
			return string(acc), err
		}
		if ok {
			continue
		}
		select {
		case <-c.notify:
		case <-t.C:
			return string(acc), nil
		}
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
	return nil
}

// fakeDevice 模拟排插 shell：登录、批量脚本与开关命令
type fakeDevice struct {
	mu       sync.Mutex
	password string
	switches [SocketCount + 1]bool
	voltage  float64
}

func newFakeDevice(password string) *fakeDevice {
	return &fakeDevice{password: password, voltage: 229.5}
}

func (d *fakeDevice) telemetry(socket int, attr Attribute) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch attr {
	case AttrSwitch:
		v := 0
		if d.switches[socket] {
			v = 1
		}
		return fmt.Sprintf("%s(bool)=%d", AttributePath(socket, attr), v)
	case AttrVoltage:
		return fmt.Sprintf("%s(float)=%.1f", AttributePath(socket, attr), d.voltage)
	case AttrCurrent:
		return fmt.Sprintf("%s(float)=0.%d5", AttributePath(socket, attr), socket)
	case AttrPower:
		return fmt.Sprintf("%s(float)=%d.0", AttributePath(socket, attr), socket*10)
	case AttrEnergy:
		return fmt.Sprintf("%s(float)=%d", AttributePath(socket, attr), socket)
	default:
		return fmt.Sprintf("%s(string)={'peakenergy':%d,'valleyenergy':3}", AttributePath(socket, attr), socket*2)
	}
}

// respond 按命令生成回显与输出，最后以提示符结束
func (d *fakeDevice) respond(c *fakeConn, cmd string) {
	var b strings.Builder
	switch {
	case strings.HasPrefix(cmd, DefaultUsername+"\n"):
		b.WriteString("root\r\nPassword: \r\n")
		if cmd != LoginCommand(DefaultUsername, d.password) {
			b.WriteString("Login incorrect\r\n(none) login: ")
			c.feed(b.String())
			return
		}
		b.WriteString(testBanner)
	case cmd == InstallScriptCommand():
		b.WriteString("tee " + ScriptPath + " <<EOF\r\n> EOF\r\n")
	case cmd == RunScriptCommand():
		b.WriteString(strings.TrimSuffix(cmd, "\n") + "\r\n")
		for socket := 1; socket <= SocketCount; socket++ {
			for _, attr := range AllAttributes {
				b.WriteString(d.telemetry(socket, attr) + "\r\n")
			}
		}
	case strings.HasPrefix(cmd, "qmibtree -s "):
		var socket, v int
		if _, err := fmt.Sscanf(cmd, "qmibtree -s "+TelemetryPrefix+"%d.Switch %d", &socket, &v); err == nil && ValidSocket(socket) {
			d.mu.Lock()
			d.switches[socket] = v == 1
			d.mu.Unlock()
		}
		b.WriteString(strings.TrimSuffix(cmd, "\n") + "\r\n")
	case strings.HasPrefix(cmd, "qmibtree -g "):
		var socket int
		b.WriteString(strings.TrimSuffix(cmd, "\n") + "\r\n")
		if _, err := fmt.Sscanf(cmd, "qmibtree -g "+TelemetryPrefix+"%d.", &socket); err == nil && ValidSocket(socket) {
			b.WriteString(d.telemetry(socket, AttrSwitch) + "\r\n")
		}
	}
	b.WriteString(PromptMarker)
	c.feed(b.String())
}

// conn 新连接，先输出登录提示
func (d *fakeDevice) conn() *fakeConn {
	c := newFakeConn(d.respond)
	c.feed("\r\n(none) login: ")
	return c
}

// fakeDialer 依次返回预置的连接或错误
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	next  func(n int) (Conn, error)
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	next := d.next
	d.mu.Unlock()
	c, err := next(n)
	if err != nil {
		return nil, err
	}
	if fc, ok := c.(*fakeConn); ok {
		d.mu.Lock()
		d.conns = append(d.conns, fc)
		d.mu.Unlock()
	}
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// recordingSink 记录全部回调
type recordingSink struct {
	mu          sync.Mutex
	updates     []Telemetry
	connFail    int
	loginFail   int
	exceptions  []error
	onConnFail  func()
	updateCheck func(socket int, attr Attribute)
}

func (r *recordingSink) OnStatusUpdate(socket int, attr Attribute) {
	r.mu.Lock()
	r.updates = append(r.updates, Telemetry{Socket: socket, Attr: attr})
	check := r.updateCheck
	r.mu.Unlock()
	if check != nil {
		check(socket, attr)
	}
}

func (r *recordingSink) OnConnectionFailure(error) {
	r.mu.Lock()
	r.connFail++
	cb := r.onConnFail
	r.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (r *recordingSink) OnLoginFailure(error) {
	r.mu.Lock()
	r.loginFail++
	r.mu.Unlock()
}

func (r *recordingSink) OnException(err error) {
	r.mu.Lock()
	r.exceptions = append(r.exceptions, err)
	r.mu.Unlock()
}

func (r *recordingSink) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recordingSink) ConnFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connFail
}

func (r *recordingSink) LoginFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loginFail
}

var errDialRefused = errors.New("connection refused")

func testOptions(d Dialer, sink EventSink) Options {
	return Options{
		Host:             "192.0.2.10",
		Password:         "secret",
		LoginTimeout:     200 * time.Millisecond,
		ReceiveInterval:  10 * time.Millisecond,
		IdlePollInterval: 5 * time.Millisecond,
		ReconnectBackoff: 20 * time.Millisecond,
		UpdateInterval:   30 * time.Millisecond,
		Dialer:           d,
		Sink:             sink,
	}
}
