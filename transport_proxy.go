package mqtt

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer connects to the broker through a SOCKS5 proxy, for
// deployments where brokers sit behind a bastion.
type ProxyDialer struct {
	// ProxyAddr is the host:port of the SOCKS5 proxy.
	ProxyAddr string

	// Auth is the optional proxy authentication.
	Auth *proxy.Auth

	// Timeout bounds the dial through the proxy. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address through the proxy.
func (d *ProxyDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", d.ProxyAddr, d.Auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", d.ProxyAddr, err)
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		conn, err := dialer.Dial("tcp", address)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	conn, err := cd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
