package amqp

import (
	"crypto/tls"
	"time"

	driver "github.com/rabbitmq/amqp091-go"

	"github.com/szarykott/goamqp/xlog"
)

// Config collects every knob the connection core and recovery orchestrator
// read at dial time. Build one with NewConfig and a sequence of Options;
// zero-value fields are filled with the defaults documented on each Option.
type Config struct {
	Endpoints          []string
	ClientProvidedName string
	TLSConfig          *tls.Config
	SASL               []driver.Authentication
	Vhost              string

	RequestedChannelMax uint16
	RequestedFrameMax   uint32
	RequestedHeartbeat  time.Duration

	ContinuationTimeout          time.Duration
	HandshakeContinuationTimeout time.Duration

	TopologyRecovery        bool
	NetworkRecoveryInterval time.Duration
	BlockOnRecovery         bool
	MaxRecoveryAttempts     int

	ConsumerDispatchConcurrency int64

	Logger xlog.Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// NewConfig builds a Config from opts, applying defaults for anything left
// unset.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		RequestedChannelMax:          2047,
		RequestedFrameMax:            131072,
		RequestedHeartbeat:           10 * time.Second,
		ContinuationTimeout:          20 * time.Second,
		HandshakeContinuationTimeout: 10 * time.Second,
		TopologyRecovery:             true,
		NetworkRecoveryInterval:      5 * time.Second,
		BlockOnRecovery:              false,
		ConsumerDispatchConcurrency:  1,
		Logger:                       xlog.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithEndpoints sets the ordered list of broker URIs probed at dial time and
// on every recovery attempt; the first reachable one wins.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Config) { c.Endpoints = endpoints }
}

// WithClientProvidedName sets the connection.name client property surfaced
// in the broker's management UI.
func WithClientProvidedName(name string) Option {
	return func(c *Config) { c.ClientProvidedName = name }
}

// WithVhost selects the virtual host to open the connection against.
func WithVhost(vhost string) Option {
	return func(c *Config) { c.Vhost = vhost }
}

// WithTLS enables amqps:// semantics with the given TLS configuration.
func WithTLS(conf *tls.Config) Option {
	return func(c *Config) { c.TLSConfig = conf }
}

// WithSASL overrides the default PLAIN mechanism negotiated during the
// connection handshake.
func WithSASL(mechanisms ...driver.Authentication) Option {
	return func(c *Config) { c.SASL = mechanisms }
}

// WithRequestedChannelMax bounds how many sessions may be multiplexed over
// one connection (ChannelExhausted once exceeded).
func WithRequestedChannelMax(max uint16) Option {
	return func(c *Config) { c.RequestedChannelMax = max }
}

// WithRequestedFrameMax bounds the largest frame either peer may send.
func WithRequestedFrameMax(max uint32) Option {
	return func(c *Config) { c.RequestedFrameMax = max }
}

// WithRequestedHeartbeat sets the heartbeat interval negotiated during
// connection.tune.
func WithRequestedHeartbeat(interval time.Duration) Option {
	return func(c *Config) { c.RequestedHeartbeat = interval }
}

// WithContinuationTimeout bounds how long a synchronous RPC (declare, bind,
// consume, ...) waits for its matching -ok before failing with
// KindTimeout.
func WithContinuationTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.ContinuationTimeout = timeout }
}

// WithHandshakeContinuationTimeout bounds how long the initial
// connection.start/tune/open handshake may take before the dial fails.
func WithHandshakeContinuationTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.HandshakeContinuationTimeout = timeout }
}

// WithTopologyRecovery enables or disables topology replay after a
// reconnect. Disabling it still reconnects the transport but leaves the
// Topology Recorder's entries unreplayed.
func WithTopologyRecovery(enabled bool) Option {
	return func(c *Config) { c.TopologyRecovery = enabled }
}

// WithNetworkRecoveryInterval sets the delay between successive reconnect
// attempts while the orchestrator is in the Reconnecting state.
func WithNetworkRecoveryInterval(interval time.Duration) Option {
	return func(c *Config) { c.NetworkRecoveryInterval = interval }
}

// WithBlockOnRecovery controls whether operations invoked while the
// orchestrator is Reconnecting block until it settles (true) or fail
// immediately with KindAlreadyClosed (false, the default).
func WithBlockOnRecovery(block bool) Option {
	return func(c *Config) { c.BlockOnRecovery = block }
}

// WithMaxRecoveryAttempts bounds how many consecutive failed reconnect
// attempts the orchestrator makes before giving up (RecoveryGivenUp). Zero,
// the default, means retry indefinitely.
func WithMaxRecoveryAttempts(n int) Option {
	return func(c *Config) { c.MaxRecoveryAttempts = n }
}

// WithConsumerDispatchConcurrency bounds how many deliveries for a single
// channel's consumers may be handled concurrently.
// A value of 1 (the default) preserves strict per-channel delivery order.
func WithConsumerDispatchConcurrency(n int64) Option {
	return func(c *Config) { c.ConsumerDispatchConcurrency = n }
}

// WithLogger attaches a structured logger; by default everything is
// discarded.
func WithLogger(log xlog.Logger) Option {
	return func(c *Config) { c.Logger = log }
}
