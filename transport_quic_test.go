package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestCertificate(t testing.TB) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(certPEM)

	return cert, certPool
}

func TestQUICListenerConfig(t *testing.T) {
	t.Run("requires TLS", func(t *testing.T) {
		_, err := NewQUICListener("127.0.0.1:0", nil, nil)
		assert.ErrorIs(t, err, ErrTLSRequired)
	})

	t.Run("listener address", func(t *testing.T) {
		cert, _ := generateTestCertificate(t)
		listener, err := NewQUICListener("127.0.0.1:0", &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{QUICALPN},
		}, nil)
		require.NoError(t, err)
		defer listener.Close()

		assert.NotNil(t, listener.Addr())
	})

	t.Run("invalid address", func(t *testing.T) {
		cert, _ := generateTestCertificate(t)
		_, err := NewQUICListener("invalid-address-not-ip:port", &tls.Config{
			Certificates: []tls.Certificate{cert},
		}, nil)
		assert.Error(t, err)
	})
}

func TestQUICTLSDefaults(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		d := NewQUICDialer(nil)
		require.NotNil(t, d.TLSConfig)
		assert.Equal(t, uint16(tls.VersionTLS13), d.TLSConfig.MinVersion)
		assert.Contains(t, d.TLSConfig.NextProtos, QUICALPN)
	})

	t.Run("upgrades TLS version and adds ALPN", func(t *testing.T) {
		original := &tls.Config{MinVersion: tls.VersionTLS12}
		got := quicTLSConfig(original)
		assert.Equal(t, uint16(tls.VersionTLS13), got.MinVersion)
		assert.Equal(t, []string{QUICALPN}, got.NextProtos)

		// The caller's config is cloned, not mutated.
		assert.Equal(t, uint16(tls.VersionTLS12), original.MinVersion)
	})

	t.Run("compliant config passes through", func(t *testing.T) {
		cfg := &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{"custom"},
		}
		assert.Same(t, cfg, quicTLSConfig(cfg))
	})
}

func TestQUICDialFailures(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		dialer := NewQUICDialer(&tls.Config{InsecureSkipVerify: true})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := dialer.Dial(ctx, "127.0.0.1:1234")
		assert.Error(t, err)
	})

	t.Run("nonexistent server", func(t *testing.T) {
		dialer := NewQUICDialer(&tls.Config{InsecureSkipVerify: true})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := dialer.Dial(ctx, "127.0.0.1:59999")
		assert.Error(t, err)
	})
}

func TestQUICRoundTrip(t *testing.T) {
	cert, certPool := generateTestCertificate(t)

	listener, err := NewQUICListener("127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{QUICALPN},
	}, nil)
	require.NoError(t, err)
	defer listener.Close()

	clientDone := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer conn.Close()

		pkt, _, err := ReadPacket(conn, MQTTv50, 0)
		if err != nil {
			serverDone <- err
			return
		}
		if pkt.Type() == PacketCONNECT {
			_, _ = WritePacket(conn, &ConnackPacket{ReasonCode: ReasonSuccess}, MQTTv50, 0)
		}

		<-clientDone
		serverDone <- nil
	}()

	dialer := NewQUICDialer(&tls.Config{
		RootCAs:    certPool,
		ServerName: "localhost",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx, listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.NotNil(t, conn.LocalAddr())
	assert.NotNil(t, conn.RemoteAddr())
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	connect := &ConnectPacket{ClientID: "quic-client", CleanStart: true, KeepAlive: 60}
	_, err = WritePacket(conn, connect, MQTTv50, 0)
	require.NoError(t, err)

	pkt, _, err := ReadPacket(conn, MQTTv50, 0)
	require.NoError(t, err)
	connack, ok := pkt.(*ConnackPacket)
	require.True(t, ok)
	assert.Equal(t, ReasonSuccess, connack.ReasonCode)

	close(clientDone)
	select {
	case err := <-serverDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server timed out")
	}
}
