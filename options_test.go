package mqtt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, MQTTv50, opts.Version)
	assert.True(t, opts.CleanStart)
	assert.Equal(t, uint16(60), opts.KeepAlive)
	assert.Equal(t, uint32(256*1024), opts.MaxPacketSize)
	assert.Equal(t, uint16(65535), opts.ReceiveMaximum)
	assert.NoError(t, opts.Validate())
}

func TestLoadOptions(t *testing.T) {
	t.Run("file over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
version: 4
client_id: loader
keep_alive: 30
session_expiry: 300
receive_maximum: 16
publish_rate: 100
`), 0o644))

		opts, err := LoadOptions(path)
		require.NoError(t, err)

		assert.Equal(t, MQTTv311, opts.Version)
		assert.Equal(t, "loader", opts.ClientID)
		assert.Equal(t, uint16(30), opts.KeepAlive)
		assert.Equal(t, uint32(300), opts.SessionExpiry)
		assert.Equal(t, uint16(16), opts.ReceiveMaximum)
		// Unset keys keep their defaults.
		assert.Equal(t, uint32(256*1024), opts.MaxPacketSize)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: [not a version"), 0o644))
		_, err := LoadOptions(path)
		assert.Error(t, err)
	})

	t.Run("invalid version", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 3"), 0o644))
		_, err := LoadOptions(path)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	opts.PublishRate = -1
	assert.Error(t, opts.Validate())
}

func TestNewOptions(t *testing.T) {
	store := NewMemorySessionStore()
	opts := NewOptions(
		WithVersion(MQTTv311),
		WithClientID("opt-client"),
		WithCleanStart(false),
		WithKeepAlive(15),
		WithReceiveMaximum(8),
		WithSessionStore(store),
		WithPublishRate(50, 10),
	)

	assert.Equal(t, MQTTv311, opts.Version)
	assert.Equal(t, "opt-client", opts.ClientID)
	assert.False(t, opts.CleanStart)
	assert.Equal(t, uint16(15), opts.KeepAlive)
	assert.Equal(t, uint16(8), opts.ReceiveMaximum)
	assert.Same(t, store, opts.SessionStore)
	assert.Equal(t, float64(50), opts.PublishRate)
}

func TestOptionsNormalize(t *testing.T) {
	opts := &Options{Version: MQTTv50}
	opts.normalize()

	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.SessionStore)
	assert.Equal(t, 20*time.Second, opts.RetryInterval)
}

func TestOptionsPublishLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		opts := DefaultOptions()
		assert.Nil(t, opts.publishLimiter())
	})

	t.Run("burst defaults to the rate", func(t *testing.T) {
		opts := NewOptions(WithPublishRate(10, 0))
		limiter := opts.publishLimiter()
		require.NotNil(t, limiter)
		assert.Equal(t, 10, limiter.Burst())
	})

	t.Run("explicit burst", func(t *testing.T) {
		opts := NewOptions(WithPublishRate(10, 25))
		limiter := opts.publishLimiter()
		require.NotNil(t, limiter)
		assert.Equal(t, 25, limiter.Burst())
	})
}
