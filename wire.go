package controlconn

import (
	"context"

	"github.com/scylla-go/controlconn/events"
)

// Row is one CQL result row, keyed by column name — the shape a wire-codec
// collaborator hands back (spec §2: "the wire-format codec ... is treated
// as an interface the core consumes"). Grounded on gocql's Iter.SliceMap.
type Row map[string]interface{}

// Conn is the out-of-scope "pooled data-plane connection" collaborator,
// reduced to the operations the control connection performs on its own
// dedicated socket (spec §2, §6).
type Conn interface {
	// Query executes a parameterized CQL statement (spec §4.5's "Function
	// or aggregate" targeted refresh, the one query bound by values rather
	// than string-quoted) and returns its result rows.
	Query(ctx context.Context, stmt string, values ...interface{}) ([]Row, error)

	// QuerySystem executes one of the literal, unparameterized system-table
	// reads of spec §6 (the local/peers host scan, the bulk and targeted
	// schema reads) and returns its result rows.
	QuerySystem(ctx context.Context, stmt string) ([]Row, error)

	// RegisterEvents subscribes this connection to the given event types
	// (spec §6, Event subscription).
	RegisterEvents(ctx context.Context, eventTypes []string) error

	// Events returns the channel the codec layer delivers server-pushed
	// events on. It is closed when the connection is closed.
	Events() <-chan events.Event

	// Close tears down the socket. Idempotent.
	Close() error
}

// Dialer is the out-of-scope "pooled data-plane connections" collaborator
// reduced to the single operation the control connection needs: open one
// connection to a host and perform the handshake at the given protocol
// version.
type Dialer interface {
	Dial(ctx context.Context, host *Host, proto ProtoVersion) (Conn, error)
}

// DialErrorKind categorizes a Dial failure per spec §7's error table, so
// the state machine can pick the right disposition without string
// matching.
type DialErrorKind int

const (
	DialErrorOther DialErrorKind = iota
	DialErrorAuth
	DialErrorTLS
	DialErrorInvalidProtocol
)

// DialError wraps a Dial failure with the categorization the control
// connection's state machine dispatches on (spec §4.2, §7).
type DialError struct {
	Kind ProtoDialErrorKind
	Err  error
}

// ProtoDialErrorKind is an alias kept for readability at call sites; see
// DialErrorKind.
type ProtoDialErrorKind = DialErrorKind

func (e *DialError) Error() string { return e.Err.Error() }
func (e *DialError) Unwrap() error { return e.Err }

// QueryErrorKind categorizes a post-connect query failure per spec §4.7's
// three error hooks.
type QueryErrorKind int

const (
	QueryErrorInvalidResponse QueryErrorKind = iota
	QueryErrorServer
	QueryErrorTimeout
	QueryErrorStreamExhausted
)

// QueryError wraps a query failure with the categorization the request
// callbacks (spec §4.7) dispatch on. Every kind defuncts the connection.
type QueryError struct {
	Kind QueryErrorKind
	Err  error
}

func (e *QueryError) Error() string { return e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// Wire queries, listed literally for byte compatibility (spec §6).
// host_id is appended to both (expansion, SPEC_FULL.md "Host identity"):
// modern Cassandra reports it on both tables, and it is never required by
// any invariant, so its absence on older servers is harmless.
const (
	qrySystemLocal = "SELECT host_id, data_center, rack, release_version, partitioner, tokens FROM system.local WHERE key='local'"
	qrySystemPeers = "SELECT peer, host_id, data_center, rack, release_version, rpc_address, tokens FROM system.peers"

	qryLegacyKeyspaces = "SELECT * FROM system.schema_keyspaces"
	qryLegacyTables    = "SELECT * FROM system.schema_columnfamilies"
	qryLegacyColumns   = "SELECT * FROM system.schema_columns"
	qryLegacyUserTypes = "SELECT * FROM system.schema_usertypes"
	qryLegacyFunctions = "SELECT * FROM system.schema_functions"
	qryLegacyAggregates = "SELECT * FROM system.schema_aggregates"

	qryModernKeyspaces = "SELECT * FROM system_schema.keyspaces"
	qryModernTables     = "SELECT * FROM system_schema.tables"
	qryModernViews      = "SELECT * FROM system_schema.views"
	qryModernColumns    = "SELECT * FROM system_schema.columns"
	qryModernIndexes    = "SELECT * FROM system_schema.indexes"
	qryModernUserTypes  = "SELECT * FROM system_schema.types"
	qryModernFunctions  = "SELECT * FROM system_schema.functions"
	qryModernAggregates = "SELECT * FROM system_schema.aggregates"
)
