package ptsp01

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectivityError(t *testing.T) {
	for _, err := range []error{
		io.EOF,
		fmt.Errorf("read: %w", io.ErrUnexpectedEOF),
		net.ErrClosed,
		syscall.ECONNRESET,
		syscall.EPIPE,
		&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
		&ConnectivityError{Op: "handshake"},
	} {
		assert.True(t, IsConnectivityError(err), "%v", err)
	}
	assert.False(t, IsConnectivityError(nil))
	assert.False(t, IsConnectivityError(errors.New("boom")))
	assert.False(t, IsConnectivityError(&AuthenticationError{Host: "h"}))
}

func TestConnectivityWrapping(t *testing.T) {
	assert.NoError(t, connectivity("x", nil))

	err := connectivity("read", io.EOF)
	var ce *ConnectivityError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "read", ce.Op)
	assert.ErrorIs(t, err, io.EOF)

	// 已经是连接类错误时不再重复包装
	assert.Same(t, err, connectivity("write", err))
	assert.Equal(t, "ptsp01: read: EOF", err.Error())
}

func TestAuthenticationError(t *testing.T) {
	err := fmt.Errorf("connect: %w", &AuthenticationError{Host: "10.0.0.1"})
	assert.True(t, IsAuthenticationError(err))
	assert.Contains(t, err.Error(), "10.0.0.1")
}
