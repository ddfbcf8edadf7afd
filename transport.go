package mqtt

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Conn is the byte stream the engine runs over. Any ordered, reliable
// transport qualifies; the engine never looks past this interface.
type Conn interface {
	net.Conn
}

// Listener accepts incoming MQTT connections.
type Listener interface {
	// Accept waits for and returns the next connection.
	Accept() (Conn, error)

	// Close closes the listener.
	Close() error

	// Addr returns the listener's network address.
	Addr() net.Addr
}

// Dialer establishes outbound MQTT connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// tuneTCP applies the engine's socket settings where the connection is
// really TCP; other connections pass through untouched. Nagle is turned
// off so small acknowledgement packets leave immediately.
func tuneTCP(conn net.Conn, keepAlive time.Duration) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetNoDelay(true)
	if keepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(keepAlive)
	}
}

// TCPListener accepts engine connections over plain TCP, tuning each
// accepted socket for long-lived MQTT traffic.
type TCPListener struct {
	// KeepAlivePeriod enables TCP keep-alive probes on accepted
	// connections when positive, catching peers that vanished without a
	// FIN below the protocol-level keep-alive timer. Zero keeps the OS
	// default.
	KeepAlivePeriod time.Duration

	listener net.Listener
}

// NewTCPListener creates a TCP listener on the given address.
func NewTCPListener(address string) (*TCPListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: l}, nil
}

// Accept waits for and returns the next connection, tuned.
func (l *TCPListener) Accept() (Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	tuneTCP(conn, l.KeepAlivePeriod)
	return conn, nil
}

// Close closes the listener.
func (l *TCPListener) Close() error { return l.listener.Close() }

// Addr returns the listener's network address.
func (l *TCPListener) Addr() net.Addr { return l.listener.Addr() }

// TCPDialer connects over plain TCP.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means no timeout.
	Timeout time.Duration

	// KeepAlivePeriod enables TCP keep-alive probes, as on the listener
	// side. Zero keeps the OS default.
	KeepAlivePeriod time.Duration
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlivePeriod}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tuneTCP(conn, 0)
	return conn, nil
}

// TLSListener accepts TLS connections. With a handshake timeout set it
// completes each handshake before handing the connection to the engine,
// so the decoder's first read never stalls inside the TLS layer and a
// peer that connects but never handshakes is dropped on a deadline.
type TLSListener struct {
	// HandshakeTimeout bounds each accepted handshake. Zero hands the
	// connection over lazily; the handshake then completes on first
	// read or write.
	HandshakeTimeout time.Duration

	// KeepAlivePeriod enables TCP keep-alive probes on the underlying
	// socket, as on TCPListener.
	KeepAlivePeriod time.Duration

	listener net.Listener
	config   *tls.Config
}

// NewTLSListener creates a TLS listener on the given address.
func NewTLSListener(address string, config *tls.Config) (*TLSListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TLSListener{listener: l, config: config}, nil
}

// Accept waits for the next connection and, with a handshake timeout
// configured, completes its TLS handshake.
func (l *TLSListener) Accept() (Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	tuneTCP(conn, l.KeepAlivePeriod)

	tlsConn := tls.Server(conn, l.config)
	if l.HandshakeTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), l.HandshakeTimeout)
		err := tlsConn.HandshakeContext(ctx)
		cancel()
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	return tlsConn, nil
}

// Close closes the listener.
func (l *TLSListener) Close() error { return l.listener.Close() }

// Addr returns the listener's network address.
func (l *TLSListener) Addr() net.Addr { return l.listener.Addr() }

// TLSDialer connects over TLS, completing the handshake during Dial.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout bounds connection establishment, handshake included.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    d.Config,
	}
	return dialer.DialContext(ctx, "tcp", address)
}
