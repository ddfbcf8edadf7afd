package mqtt

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

// startMockSOCKS5 runs a single-connection SOCKS5 server that performs
// the handshake and then echoes everything back instead of relaying to
// the requested target.
func startMockSOCKS5(t *testing.T, wantUser, wantPass string) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Greeting: version, method count, methods.
		head := make([]byte, 2)
		if _, err := io.ReadFull(conn, head); err != nil || head[0] != 0x05 {
			return
		}
		methods := make([]byte, head[1])
		if _, err := io.ReadFull(conn, methods); err != nil {
			return
		}

		if wantUser != "" {
			conn.Write([]byte{0x05, 0x02})
			// Username/password subnegotiation.
			ver := make([]byte, 2)
			if _, err := io.ReadFull(conn, ver); err != nil || ver[0] != 0x01 {
				return
			}
			user := make([]byte, ver[1])
			if _, err := io.ReadFull(conn, user); err != nil {
				return
			}
			plen := make([]byte, 1)
			if _, err := io.ReadFull(conn, plen); err != nil {
				return
			}
			pass := make([]byte, plen[0])
			if _, err := io.ReadFull(conn, pass); err != nil {
				return
			}
			if string(user) != wantUser || string(pass) != wantPass {
				conn.Write([]byte{0x01, 0x01})
				return
			}
			conn.Write([]byte{0x01, 0x00})
		} else {
			conn.Write([]byte{0x05, 0x00})
		}

		// CONNECT request: version, command, reserved, address type.
		req := make([]byte, 4)
		if _, err := io.ReadFull(conn, req); err != nil || req[1] != 0x01 {
			return
		}
		var addrLen int
		switch req[3] {
		case 0x01:
			addrLen = 4
		case 0x04:
			addrLen = 16
		case 0x03:
			l := make([]byte, 1)
			if _, err := io.ReadFull(conn, l); err != nil {
				return
			}
			addrLen = int(l[0])
		default:
			return
		}
		if _, err := io.ReadFull(conn, make([]byte, addrLen+2)); err != nil {
			return
		}

		conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

		io.Copy(conn, conn)
	}()

	return listener.Addr().String()
}

func TestProxyDialer(t *testing.T) {
	addr := startMockSOCKS5(t, "", "")
	dialer := &ProxyDialer{ProxyAddr: addr, Timeout: 2 * time.Second}

	conn, err := dialer.Dial(context.Background(), "broker.example.com:1883")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestProxyDialerAuth(t *testing.T) {
	addr := startMockSOCKS5(t, "user", "pass")
	dialer := &ProxyDialer{
		ProxyAddr: addr,
		Auth:      &proxy.Auth{User: "user", Password: "pass"},
		Timeout:   2 * time.Second,
	}

	conn, err := dialer.Dial(context.Background(), "broker.example.com:1883")
	require.NoError(t, err)
	conn.Close()
}

func TestProxyDialerBadCredentials(t *testing.T) {
	addr := startMockSOCKS5(t, "user", "pass")
	dialer := &ProxyDialer{
		ProxyAddr: addr,
		Auth:      &proxy.Auth{User: "user", Password: "wrong"},
		Timeout:   2 * time.Second,
	}

	_, err := dialer.Dial(context.Background(), "broker.example.com:1883")
	assert.Error(t, err)
}

func TestProxyDialerUnreachable(t *testing.T) {
	dialer := &ProxyDialer{ProxyAddr: "127.0.0.1:1", Timeout: time.Second}
	_, err := dialer.Dial(context.Background(), "broker.example.com:1883")
	assert.Error(t, err)
}
