package ptsp01

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deviceDialer(dev *fakeDevice) *fakeDialer {
	return &fakeDialer{next: func(int) (Conn, error) { return dev.conn(), nil }}
}

func connectedSession(t *testing.T, sink EventSink) (*Session, *fakeDevice, *fakeDialer) {
	t.Helper()
	dev := newFakeDevice("secret")
	dialer := deviceDialer(dev)
	s := New(testOptions(dialer, sink))
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))
	return s, dev, dialer
}

func TestNewSessionDefaults(t *testing.T) {
	s := New(Options{Host: "10.0.0.5"})
	defer s.Close()

	assert.Equal(t, "10.0.0.5:23", s.Addr())
	assert.Equal(t, LoginUnknown, s.IsLoggedIn())
	assert.Equal(t, PhaseDisconnected, s.Phase())
	assert.Equal(t, 10*time.Second, s.Interval())
	assert.Len(t, s.Outlets(), SocketCount)
	assert.True(t, math.IsNaN(s.Voltage(1)))
	assert.True(t, math.IsNaN(s.Energy(2)))
	assert.True(t, math.IsNaN(s.Power(9)))
}

func TestConnectLogsIn(t *testing.T) {
	s, _, dialer := connectedSession(t, nil)

	assert.Equal(t, LoggedIn, s.IsLoggedIn())
	assert.Equal(t, PhaseLoggedIn, s.Phase())
	assert.Equal(t, "bleeding edge, r42", s.Version())

	ok, err := s.WaitForLogin(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	c := dialer.conn(0)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.count(LoginCommand("root", "secret")))
	assert.Equal(t, 1, c.count(InstallScriptCommand()))
}

func TestConnectAlreadyAtPrompt(t *testing.T) {
	dev := newFakeDevice("secret")
	dialer := &fakeDialer{next: func(int) (Conn, error) {
		c := newFakeConn(dev.respond)
		c.feed(testBanner + PromptMarker)
		return c, nil
	}}
	s := New(testOptions(dialer, nil))
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, LoggedIn, s.IsLoggedIn())
	for _, w := range dialer.conn(0).Writes() {
		assert.NotEqual(t, LoginCommand("root", "secret"), w, "凭据不应发送")
	}
}

func TestConnectWrongPassword(t *testing.T) {
	sink := &recordingSink{}
	dev := newFakeDevice("other")
	dialer := deviceDialer(dev)
	s := New(testOptions(dialer, sink))
	defer s.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
	assert.False(t, IsConnectivityError(err))

	assert.Equal(t, LoggedOut, s.IsLoggedIn())
	assert.Equal(t, PhaseLoginFailed, s.Phase())
	assert.Equal(t, 1, sink.LoginFailures())
	assert.Equal(t, 0, sink.ConnFailures())
	assert.True(t, dialer.conn(0).isClosed())

	ok, err := s.WaitForLogin(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnectUnrecognisedBanner(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (Conn, error) {
		c := newFakeConn(nil)
		c.feed("SSH-2.0-dropbear\r\n")
		return c, nil
	}}
	s := New(testOptions(dialer, nil))
	defer s.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
	assert.Equal(t, PhaseDisconnected, s.Phase())
}

func TestConnectDialFailure(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (Conn, error) { return nil, errDialRefused }}
	s := New(testOptions(dialer, nil))
	defer s.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
	assert.ErrorIs(t, err, errDialRefused)

	ok, err := s.WaitForLogin(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, s.Stats().LastError, errDialRefused.Error())
}

func TestLoginPromptRepeatedIsBounded(t *testing.T) {
	dialer := &fakeDialer{next: func(int) (Conn, error) {
		c := newFakeConn(func(c *fakeConn, _ string) { c.feed("\r\n(none) login: ") })
		c.feed("(none) login: ")
		return c, nil
	}}
	opts := testOptions(dialer, nil)
	opts.MaxLoginRounds = 2
	s := New(opts)
	defer s.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityError(err))
	assert.Equal(t, 2, dialer.conn(0).count(LoginCommand("root", "secret")))
}

func TestWaitForLoginHonoursContext(t *testing.T) {
	s := New(testOptions(&fakeDialer{}, nil))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := s.WaitForLogin(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForLoginSpansSlowConnect(t *testing.T) {
	dev := newFakeDevice("secret")
	dialer := &fakeDialer{next: func(int) (Conn, error) {
		time.Sleep(50 * time.Millisecond)
		return dev.conn(), nil
	}}
	s := New(testOptions(dialer, nil))
	defer s.Close()

	type result struct {
		ok  bool
		err error
	}
	waited := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, err := s.WaitForLogin(ctx)
		waited <- result{ok, err}
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Connect(context.Background()))

	select {
	case r := <-waited:
		require.NoError(t, r.err)
		assert.True(t, r.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLogin did not return")
	}
}

func TestWaitForLoginReportsRejection(t *testing.T) {
	dev := newFakeDevice("other")
	s := New(testOptions(deviceDialer(dev), nil))
	defer s.Close()

	waited := make(chan bool, 1)
	go func() {
		ok, _ := s.WaitForLogin(context.Background())
		waited <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	require.Error(t, s.Connect(context.Background()))

	select {
	case ok := <-waited:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForLogin did not return")
	}
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
}

// contextDialer 阻塞到 ctx 结束
type contextDialer struct{ dialing chan struct{} }

func (d contextDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	close(d.dialing)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCloseAbortsDial(t *testing.T) {
	dialer := contextDialer{dialing: make(chan struct{})}
	s := New(testOptions(dialer, nil))

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background()) }()
	<-dialer.dialing
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
}

func TestCloseDuringDialDropsConnection(t *testing.T) {
	dev := newFakeDevice("secret")
	dialing := make(chan struct{})
	release := make(chan struct{})
	dialer := &fakeDialer{next: func(int) (Conn, error) {
		close(dialing)
		<-release
		return dev.conn(), nil
	}}
	s := New(testOptions(dialer, nil))

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background()) }()
	<-dialing
	require.NoError(t, s.Close())
	close(release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
	assert.Equal(t, PhaseClosed, s.Phase())
	require.NotNil(t, dialer.conn(0))
	assert.True(t, dialer.conn(0).isClosed())
	assert.Nil(t, s.currentConn())
}

func TestSwitchRequiresLogin(t *testing.T) {
	dialer := &fakeDialer{}
	s := New(testOptions(dialer, nil))
	defer s.Close()

	assert.ErrorIs(t, s.Switch(1, true), ErrNotLoggedIn)
	assert.ErrorIs(t, s.RefreshAll(), ErrNotLoggedIn)
	assert.ErrorIs(t, s.Query(AttributePath(1, AttrPower)), ErrNotLoggedIn)
	assert.Equal(t, 0, dialer.Dials())
}

func TestSwitchInvalidSocket(t *testing.T) {
	s, _, _ := connectedSession(t, nil)
	assert.ErrorIs(t, s.Switch(0, true), ErrInvalidSocket)
	assert.ErrorIs(t, s.Switch(4, false), ErrInvalidSocket)
	assert.ErrorIs(t, s.QuerySwitch(-1), ErrInvalidSocket)
}

func TestSwitchSendsSetThenQuery(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)
	c := dialer.conn(0)
	c.resetWrites()

	require.NoError(t, s.Switch(1, true))
	assert.Equal(t, []string{
		SetSwitchCommand(1, true),
		QueryCommand(1, AttrSwitch),
	}, c.Writes())

	require.Eventually(t, func() bool {
		on, known := s.SwitchState(1)
		return known && on
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, s.Stats().CommandsSent, int64(2))
}

func TestReceiverUpdatesState(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)
	c := dialer.conn(0)

	c.feed("Device.SmartPlug.Socket.2.Voltage(float)=230.1\r\n" +
		"Device.SmartPlug.Socket.2.Energy(float)=4\r\n" +
		"Device.SmartPlug.Socket.2.EnergyMeter.SingleCount(string)={'peakenergy':5,'valleyenergy':3}\r\n" +
		"Device.SmartPlug.Socket.2.Bogus(int)=1\r\n" +
		"Device.SmartPlug.Socket.2.Power(float)=abc\r\n" +
		"Device.SmartPlug.Socket.3.Current(float)=0.")
	require.Eventually(t, func() bool { return sink.Updates() >= 3 }, time.Second, 5*time.Millisecond)

	assert.InDelta(t, 230.1, s.Voltage(2), 1e-9)
	assert.InDelta(t, 8.0, s.Energy(2), 1e-9)
	assert.True(t, math.IsNaN(s.Power(2)))
	assert.True(t, math.IsNaN(s.Current(3)), "未结束的行不应被解析")

	c.feed("5\r\n" + PromptMarker)
	require.Eventually(t, func() bool { return s.Current(3) == 0.5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, sink.Updates())
	// 未知属性与非法数值各丢弃一行
	assert.Equal(t, int64(2), s.Stats().ParseDrops)
}

func TestReceiverParsesLineAfterIdlePrompt(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)
	c := dialer.conn(0)
	require.Eventually(t, func() bool { return s.framer.Pending() == PromptMarker }, time.Second, 5*time.Millisecond)

	c.feed("Device.SmartPlug.Socket.1.Power(float)=12\r\n")
	require.Eventually(t, func() bool { return s.Power(1) == 12 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.Updates())

	// 带提示符的非法行计入丢弃
	c.feed(PromptMarker + "Device.SmartPlug.Socket.1.Power(float)=abc\r\n")
	require.Eventually(t, func() bool { return s.Stats().ParseDrops == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.Updates())
}

func TestSwitchStateUnknownWhenLoggedOut(t *testing.T) {
	s := New(testOptions(&fakeDialer{}, nil))
	defer s.Close()
	s.onMessage("Device.SmartPlug.Socket.1.Switch(bool)=1")

	_, known := s.SwitchState(1)
	assert.False(t, known)
	o, ok := s.Outlet(1)
	require.True(t, ok)
	assert.True(t, o.Switch)
}

func TestPollingRefreshesAllAttributes(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)

	require.NoError(t, s.StartPolling(20*time.Millisecond))
	assert.ErrorIs(t, s.StartPolling(0), ErrAlreadyPolling)
	assert.True(t, s.IsPolling())

	require.Eventually(t, func() bool { return sink.Updates() >= SocketCount*len(AllAttributes) }, time.Second, 5*time.Millisecond)
	for socket := 1; socket <= SocketCount; socket++ {
		assert.InDelta(t, 229.5, s.Voltage(socket), 1e-9)
		assert.InDelta(t, float64(socket*10), s.Power(socket), 1e-9)
		// Energy=socket, EnergyMeter=socket*2+3
		assert.InDelta(t, float64(socket*2+3), s.Energy(socket), 1e-9)
		on, known := s.SwitchState(socket)
		assert.True(t, known)
		assert.False(t, on)
	}

	s.StopPolling()
	assert.False(t, s.IsPolling())
	c := dialer.conn(0)
	time.Sleep(60 * time.Millisecond)
	n := c.count(RunScriptCommand())
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, n, c.count(RunScriptCommand()), "停止后不应继续刷新")

	require.NoError(t, s.StartPolling(0))
	require.Eventually(t, func() bool { return c.count(RunScriptCommand()) > n }, time.Second, 5*time.Millisecond)
}

func TestPollingWaitsForPrompt(t *testing.T) {
	s, _, dialer := connectedSession(t, nil)
	c := dialer.conn(0)
	require.Eventually(t, func() bool { return s.framer.Pending() == PromptMarker }, time.Second, 5*time.Millisecond)

	// 设备仍在输出，缓冲不以提示符结尾
	c.mu.Lock()
	c.onWrite = nil
	c.mu.Unlock()
	c.feed("Device.SmartPlug.Socket.1.Voltage(float)=2")
	require.Eventually(t, func() bool { return s.framer.Pending() != PromptMarker }, time.Second, 5*time.Millisecond)
	c.resetWrites()

	require.NoError(t, s.StartPolling(10*time.Millisecond))
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, c.count(RunScriptCommand()))

	c.feed("30.0\r\n" + PromptMarker)
	require.Eventually(t, func() bool { return c.count(RunScriptCommand()) > 0 }, time.Second, 5*time.Millisecond)
}

func TestConnectionLossReconnects(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)

	seenUnknown := make(chan bool, 1)
	sink.mu.Lock()
	sink.onConnFail = func() {
		_, known := s.SwitchState(1)
		select {
		case seenUnknown <- !known && s.IsLoggedIn() == LoggedOut:
		default:
		}
	}
	sink.mu.Unlock()
	before := sink.Updates()

	dialer.conn(0).fail(io.EOF)

	require.Eventually(t, func() bool { return s.Stats().Reconnects == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, <-seenUnknown)
	assert.Equal(t, 1, sink.ConnFailures())
	assert.GreaterOrEqual(t, sink.Updates()-before, SocketCount*len(AllAttributes))
	assert.Equal(t, LoggedIn, s.IsLoggedIn())
	assert.Equal(t, 2, dialer.Dials())
	assert.True(t, dialer.conn(0).isClosed())

	// 新连接上的断线再次触发重连
	dialer.conn(1).fail(io.ErrUnexpectedEOF)
	require.Eventually(t, func() bool { return s.Stats().Reconnects == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, sink.ConnFailures())
}

func TestReconnectRetriesUntilDeviceReturns(t *testing.T) {
	sink := &recordingSink{}
	dev := newFakeDevice("secret")
	dialer := &fakeDialer{next: func(n int) (Conn, error) {
		if n == 2 || n == 3 {
			return nil, errDialRefused
		}
		return dev.conn(), nil
	}}
	s := New(testOptions(dialer, sink))
	defer s.Close()
	require.NoError(t, s.Connect(context.Background()))

	dialer.conn(0).fail(io.EOF)
	require.Eventually(t, func() bool { return s.IsLoggedIn() == LoggedIn && dialer.Dials() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.ConnFailures())
	assert.Equal(t, int64(1), s.Stats().ConnectionFailures)
}

func TestReconnectStopsOnAuthFailure(t *testing.T) {
	sink := &recordingSink{}
	good := newFakeDevice("secret")
	bad := newFakeDevice("changed")
	dialer := &fakeDialer{next: func(n int) (Conn, error) {
		if n == 1 {
			return good.conn(), nil
		}
		return bad.conn(), nil
	}}
	s := New(testOptions(dialer, sink))
	defer s.Close()
	require.NoError(t, s.Connect(context.Background()))

	dialer.conn(0).fail(io.EOF)
	require.Eventually(t, func() bool { return sink.LoginFailures() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, dialer.Dials())
	assert.Equal(t, PhaseLoginFailed, s.Phase())
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
}

func TestPollingResumesAfterReconnect(t *testing.T) {
	s, _, dialer := connectedSession(t, nil)
	require.NoError(t, s.StartPolling(10*time.Millisecond))

	dialer.conn(0).fail(io.EOF)
	require.Eventually(t, func() bool {
		c := dialer.conn(1)
		return c != nil && c.count(RunScriptCommand()) > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.IsPolling())
}

func TestCloseStopsEverything(t *testing.T) {
	sink := &recordingSink{}
	s, _, dialer := connectedSession(t, sink)
	require.NoError(t, s.StartPolling(10*time.Millisecond))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, PhaseClosed, s.Phase())
	assert.Equal(t, LoggedOut, s.IsLoggedIn())
	assert.False(t, s.IsPolling())
	assert.True(t, dialer.conn(0).isClosed())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.StartPolling(0), ErrClosed)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.ConnFailures(), "主动关闭不应触发重连")
	assert.Equal(t, 1, dialer.Dials())
}

func TestDispatchRecoversPanic(t *testing.T) {
	sink := &recordingSink{updateCheck: func(int, Attribute) { panic("boom") }}
	s := New(testOptions(&fakeDialer{}, sink))
	defer s.Close()

	s.dispatch("Device.SmartPlug.Socket.1.Power(float)=3")
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.exceptions, 1)
	assert.Contains(t, sink.exceptions[0].Error(), "boom")
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "bleeding edge, r42", parseVersion(testBanner))
	assert.Equal(t, "", parseVersion("no marker here"))
	assert.Equal(t, "", parseVersion("ATTITUDE ADJUSTMENT without parens"))
}
