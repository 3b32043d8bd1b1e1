package controlconn

import "time"

// Config carries the knobs the session supplies to the control connection
// (spec §6, Session supplies: config). None of these are mutated by the
// core; they are read once per connection attempt.
type Config struct {
	// ProtoVersion is the initial protocol version to negotiate from.
	// Defaults to MaxSupportedCassandraVersion if zero.
	ProtoVersion ProtoVersion

	// DisableTopologyEvents, DisableStatusEvents and DisableSchemaEvents
	// control the REGISTER event mask (spec §3, Event mask E).
	DisableTopologyEvents bool
	DisableStatusEvents   bool
	DisableSchemaEvents   bool

	// TokenAwareRouting, when true, forces SCHEMA_CHANGE registration and
	// keyspace bulk reads even when schema tracking is otherwise disabled
	// (spec §3, Event mask E and spec §4.5).
	TokenAwareRouting bool

	// ReconnectInterval is the delay before retrying after a query plan is
	// exhausted while READY (spec §4.2, §9 Open Question #2). Defaults to
	// 1 second if zero.
	ReconnectInterval time.Duration

	// ConnectTimeout bounds dialing and the handshake.
	ConnectTimeout time.Duration

	// RequestTimeout bounds any single query issued by the core.
	RequestTimeout time.Duration

	// Port is the port given to every peer discovered by a full host
	// scan; the peers query selects no port column.
	Port int

	Logger  Logger
	Metrics MetricsRecorder
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.ProtoVersion == 0 {
		out.ProtoVersion = MaxSupportedCassandraVersion
	}
	if out.ReconnectInterval <= 0 {
		out.ReconnectInterval = 1 * time.Second
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 10 * time.Second
	}
	if out.Port == 0 {
		out.Port = 9042
	}
	if out.Logger == nil {
		out.Logger = defaultLogger
	}
	if out.Metrics == nil {
		out.Metrics = NopMetricsRecorder{}
	}
	return &out
}

// schemaEventsEnabled reports whether SCHEMA_CHANGE should be part of the
// REGISTER event mask (spec §3: set iff schema tracking or token-aware
// routing is enabled).
func (c *Config) schemaEventsEnabled() bool {
	return !c.DisableSchemaEvents || c.TokenAwareRouting
}

// MetricsRecorder is an optional observability hook so a caller can count
// reconnects, negotiation attempts, and schema refreshes without this
// package depending on a metrics library (spec §2 expansion).
type MetricsRecorder interface {
	IncReconnect()
	IncProtocolDowngrade()
	ObserveSchemaRefresh(tables int)
}

// NopMetricsRecorder discards every observation; the default.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncReconnect()                      {}
func (NopMetricsRecorder) IncProtocolDowngrade()              {}
func (NopMetricsRecorder) ObserveSchemaRefresh(tables int)    {}
