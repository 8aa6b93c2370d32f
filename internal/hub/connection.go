package hub

import (
	"context"

	"github.com/taoyao-code/ptsp01-gateway/internal/ptsp01"
)

// ConnectionResult 连接测试结果
type ConnectionResult string

const (
	ResultOK            ConnectionResult = "ok"
	ResultCannotConnect ConnectionResult = "cannot_connect"
	ResultInvalidAuth   ConnectionResult = "invalid_auth"
)

// TestConnection 用临时会话验证地址与密码，不影响已有连接
func TestConnection(ctx context.Context, opts ptsp01.Options) ConnectionResult {
	opts.Sink = nil
	s := ptsp01.New(opts)
	defer s.Close()

	if err := s.Connect(ctx); err != nil {
		if ptsp01.IsAuthenticationError(err) {
			return ResultInvalidAuth
		}
		return ResultCannotConnect
	}
	ok, err := s.WaitForLogin(ctx)
	if err != nil || !ok {
		return ResultCannotConnect
	}
	return ResultOK
}

// TestConnection 以该 Hub 的参数测试连接
func (h *Hub) TestConnection(ctx context.Context) ConnectionResult {
	return TestConnection(ctx, h.opts.Session)
}
