package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ErrTLSRequired is returned when TLS configuration is required but not provided.
var ErrTLSRequired = errors.New("mqtt: TLS configuration is required for QUIC")

// QUICALPN is the ALPN token for MQTT over QUIC.
const QUICALPN = "mqtt"

// QUICConn adapts one QUIC stream to net.Conn. Each MQTT connection
// rides its own bidirectional stream; the QUIC connection's addresses
// stand in for the stream's.
type QUICConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	mu     sync.Mutex
}

// Read reads data from the QUIC stream.
func (c *QUICConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

// Write writes data to the QUIC stream.
func (c *QUICConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

// Close closes the QUIC stream and connection.
func (c *QUICConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.Close(); err != nil {
		return err
	}
	return c.conn.CloseWithError(0, "")
}

// LocalAddr returns the local network address.
func (c *QUICConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *QUICConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *QUICConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *QUICConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *QUICConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

func quicTLSConfig(tlsConfig *tls.Config) *tls.Config {
	if tlsConfig == nil {
		return &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{QUICALPN},
		}
	}
	if tlsConfig.MinVersion < tls.VersionTLS13 || len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		if tlsConfig.MinVersion < tls.VersionTLS13 {
			tlsConfig.MinVersion = tls.VersionTLS13
		}
		if len(tlsConfig.NextProtos) == 0 {
			tlsConfig.NextProtos = []string{QUICALPN}
		}
	}
	return tlsConfig
}

// QUICDialer connects over QUIC.
type QUICDialer struct {
	// TLSConfig is the client TLS configuration. QUIC requires TLS 1.3;
	// the MQTT ALPN token is added if missing.
	TLSConfig *tls.Config

	// QUICConfig tunes the QUIC connection; nil means defaults.
	QUICConfig *quic.Config
}

// NewQUICDialer creates a dialer with default configuration.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	return &QUICDialer{TLSConfig: quicTLSConfig(tlsConfig)}
}

// Dial connects to the address and opens one bidirectional stream.
func (d *QUICDialer) Dial(ctx context.Context, address string) (Conn, error) {
	conn, err := quic.DialAddr(ctx, address, quicTLSConfig(d.TLSConfig), d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return &QUICConn{conn: conn, stream: stream}, nil
}

// QUICListener accepts MQTT connections over QUIC, one per stream.
type QUICListener struct {
	listener *quic.Listener
}

// NewQUICListener creates a QUIC listener on the given UDP address. The
// TLS config must carry a certificate.
func NewQUICListener(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, ErrTLSRequired
	}

	listener, err := quic.ListenAddr(addr, quicTLSConfig(tlsConfig), quicConfig)
	if err != nil {
		return nil, err
	}
	return &QUICListener{listener: listener}, nil
}

// Accept waits for the next QUIC connection and its first bidirectional
// stream.
func (l *QUICListener) Accept() (Conn, error) {
	conn, err := l.listener.Accept(context.Background())
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(context.Background())
	if err != nil {
		conn.CloseWithError(0, "failed to accept stream")
		return nil, err
	}

	return &QUICConn{conn: conn, stream: stream}, nil
}

// Close closes the QUIC listener.
func (l *QUICListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}
