package ptsp01

// EventSink 会话事件接收方（由上层适配器实现）。
// 回调在会话的后台协程中同步执行，实现方不应长时间阻塞。
type EventSink interface {
	// OnStatusUpdate 每解析出一个属性值调用一次
	OnStatusUpdate(socket int, attr Attribute)
	// OnConnectionFailure 每次连接中断调用一次
	OnConnectionFailure(err error)
	// OnLoginFailure 密码错误，不会再自动重试
	OnLoginFailure(err error)
	// OnException 接收循环中的非连接类异常
	OnException(err error)
}

// NopSink 忽略所有事件
type NopSink struct{}

func (NopSink) OnStatusUpdate(int, Attribute) {}
func (NopSink) OnConnectionFailure(error)     {}
func (NopSink) OnLoginFailure(error)          {}
func (NopSink) OnException(error)             {}

// SinkFuncs 以函数字段实现 EventSink，未设置的回调忽略
type SinkFuncs struct {
	StatusUpdate      func(socket int, attr Attribute)
	ConnectionFailure func(err error)
	LoginFailure      func(err error)
	Exception         func(err error)
}

func (f SinkFuncs) OnStatusUpdate(socket int, attr Attribute) {
	if f.StatusUpdate != nil {
		f.StatusUpdate(socket, attr)
	}
}

func (f SinkFuncs) OnConnectionFailure(err error) {
	if f.ConnectionFailure != nil {
		f.ConnectionFailure(err)
	}
}

func (f SinkFuncs) OnLoginFailure(err error) {
	if f.LoginFailure != nil {
		f.LoginFailure(err)
	}
}

func (f SinkFuncs) OnException(err error) {
	if f.Exception != nil {
		f.Exception(err)
	}
}

// MultiSink 依次转发给多个接收方
type MultiSink []EventSink

func (m MultiSink) OnStatusUpdate(socket int, attr Attribute) {
	for _, s := range m {
		s.OnStatusUpdate(socket, attr)
	}
}

func (m MultiSink) OnConnectionFailure(err error) {
	for _, s := range m {
		s.OnConnectionFailure(err)
	}
}

func (m MultiSink) OnLoginFailure(err error) {
	for _, s := range m {
		s.OnLoginFailure(err)
	}
}

func (m MultiSink) OnException(err error) {
	for _, s := range m {
		s.OnException(err)
	}
}
