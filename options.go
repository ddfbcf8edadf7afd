package mqtt

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Options configures a Dispatcher. The yaml tags let a whole engine
// configuration load from one file; collaborators (stores, loggers,
// routers) are wired in code.
type Options struct {
	// Version is the protocol version a client speaks. Servers adopt the
	// version each CONNECT declares.
	Version Version `yaml:"version"`

	// ClientID is the client identifier offered in CONNECT. Empty asks
	// the server to assign one.
	ClientID string `yaml:"client_id"`

	// CleanStart discards any stored session state on connect.
	CleanStart bool `yaml:"clean_start"`

	// KeepAlive is the keep-alive interval in seconds. 0 disables it.
	KeepAlive uint16 `yaml:"keep_alive"`

	// SessionExpiry is the v5 session expiry interval in seconds.
	SessionExpiry uint32 `yaml:"session_expiry"`

	// MaxPacketSize rejects larger packets. 0 means unlimited.
	MaxPacketSize uint32 `yaml:"max_packet_size"`

	// ReceiveMaximum bounds concurrent inbound QoS > 0 flows. 0 means
	// the protocol default of 65535.
	ReceiveMaximum uint16 `yaml:"receive_maximum"`

	// TopicAliasMaximum is the v5 alias table size offered to the peer.
	// 0 disables aliasing.
	TopicAliasMaximum uint16 `yaml:"topic_alias_maximum"`

	// PublishRate throttles inbound publishes per second. 0 disables
	// throttling.
	PublishRate float64 `yaml:"publish_rate"`

	// PublishBurst is the rate limiter burst; defaults to the rate.
	PublishBurst int `yaml:"publish_burst"`

	// RetryInterval is how long an unacknowledged flow waits before the
	// keep-alive loop flags it for retransmission.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// Wired in code, not from the file.

	Logger        Logger                `yaml:"-"`
	Metrics       Metrics               `yaml:"-"`
	SessionStore  SessionStore          `yaml:"-"`
	Auth          Authenticator         `yaml:"-"`
	EnhancedAuth  EnhancedAuthenticator `yaml:"-"`
	Subscriptions SubscriptionAuthority `yaml:"-"`
}

// DefaultOptions returns the options a zero config starts from.
func DefaultOptions() *Options {
	return &Options{
		Version:        MQTTv50,
		CleanStart:     true,
		KeepAlive:      60,
		MaxPacketSize:  256 * 1024,
		ReceiveMaximum: 65535,
		RetryInterval:  20 * time.Second,
	}
}

// LoadOptions reads options from a YAML file over the defaults.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("parse options %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options for values no connection could work with.
func (o *Options) Validate() error {
	if !o.Version.Valid() {
		return ErrUnsupportedVersion
	}
	if o.PublishRate < 0 {
		return fmt.Errorf("publish_rate must not be negative")
	}
	return nil
}

// normalize fills nil collaborators with no-op implementations.
func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = NewNoOpLogger()
	}
	if o.Metrics == nil {
		o.Metrics = &NoOpMetrics{}
	}
	if o.SessionStore == nil {
		o.SessionStore = NewMemorySessionStore()
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 20 * time.Second
	}
}

// publishLimiter builds the inbound rate limiter, nil when disabled.
func (o *Options) publishLimiter() *rate.Limiter {
	if o.PublishRate <= 0 {
		return nil
	}
	burst := o.PublishBurst
	if burst <= 0 {
		burst = int(o.PublishRate)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(o.PublishRate), burst)
}

// Option mutates Options, for configuration in code.
type Option func(*Options)

// WithVersion sets the protocol version.
func WithVersion(v Version) Option {
	return func(o *Options) { o.Version = v }
}

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(o *Options) { o.ClientID = id }
}

// WithCleanStart sets the clean-start flag.
func WithCleanStart(clean bool) Option {
	return func(o *Options) { o.CleanStart = clean }
}

// WithKeepAlive sets the keep-alive interval in seconds.
func WithKeepAlive(seconds uint16) Option {
	return func(o *Options) { o.KeepAlive = seconds }
}

// WithMaxPacketSize sets the maximum accepted packet size.
func WithMaxPacketSize(size uint32) Option {
	return func(o *Options) { o.MaxPacketSize = size }
}

// WithReceiveMaximum bounds concurrent inbound QoS > 0 flows.
func WithReceiveMaximum(maximum uint16) Option {
	return func(o *Options) { o.ReceiveMaximum = maximum }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithSessionStore sets the session store.
func WithSessionStore(store SessionStore) Option {
	return func(o *Options) { o.SessionStore = store }
}

// WithAuth sets the authenticator.
func WithAuth(auth Authenticator) Option {
	return func(o *Options) { o.Auth = auth }
}

// WithEnhancedAuth sets the enhanced authenticator for AUTH exchanges.
func WithEnhancedAuth(auth EnhancedAuthenticator) Option {
	return func(o *Options) { o.EnhancedAuth = auth }
}

// WithSubscriptionAuthority sets the per-filter SUBSCRIBE/UNSUBSCRIBE
// decision maker.
func WithSubscriptionAuthority(authority SubscriptionAuthority) Option {
	return func(o *Options) { o.Subscriptions = authority }
}

// WithPublishRate throttles inbound publishes per second.
func WithPublishRate(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.PublishRate = perSecond
		o.PublishBurst = burst
	}
}

// NewOptions builds Options from defaults plus the given settings.
func NewOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
