package controlconn

import "context"

// Session is everything the core calls back into (spec §6, Session ↔
// core). It is the session/host-registry collaborator, reduced to exactly
// the methods the core needs.
type Session interface {
	// GetHost looks up a known host by address; ok is false if unknown.
	GetHost(address string) (*Host, bool)

	// AddHost registers a newly discovered host and returns its (possibly
	// pre-existing) record. added reports whether this call created it.
	AddHost(h *Host) (host *Host, added bool)

	// OnAdd notifies the session that a host finished being added (its
	// first single-host refresh has completed), per spec §4.6 NEW_NODE.
	OnAdd(h *Host)

	// OnRemove notifies the session a host was removed (REMOVED_NODE).
	OnRemove(h *Host)

	// OnUp/OnDown flip the session-owned up/down flag immediately (spec
	// §4.6 UP/DOWN: "mark host up/down on session immediately").
	OnUp(h *Host)
	OnDown(h *Host)

	// PurgeHosts removes every host whose generation mark does not equal
	// gen (spec Invariant 3, property P3).
	PurgeHosts(gen uint64)

	// NewQueryPlan returns a fresh query plan from the load-balancing
	// policy, used after READY and on reconnect (spec §4.2).
	NewQueryPlan() QueryPlan

	// LoadBalancingPolicyHostAddRemove notifies the load-balancing policy
	// that a host's DC/rack changed (spec §4.4 reconciliation step).
	LoadBalancingPolicyHostAddRemove(h *Host)

	// TokenMap mutators (spec §6), invoked only when token-aware routing
	// is enabled.
	TokenMapInit(partitioner string, hosts []*Host)
	TokenMapHostsCleared()
	TokenMapHostAdd(h *Host)
	TokenMapHostUpdate(h *Host)
	TokenMapHostRemove(h *Host)
	TokenMapKeyspacesAdd(keyspaces []KeyspaceMetadata)
	TokenMapKeyspacesUpdate(keyspaces []KeyspaceMetadata)

	// Metadata returns the schema-metadata store collaborator (spec §4.5,
	// §6).
	Metadata() MetadataStore

	// OnControlConnectionReady notifies the session the core reached
	// READY for the first time in this lifetime (spec §4.2).
	OnControlConnectionReady()

	// OnControlConnectionError surfaces a fatal error to the session
	// (spec §6, Error surfaces).
	OnControlConnectionError(err error)
}

// MetadataStore is the schema-metadata collaborator (spec §4.5, §6). The
// bulk refresh calls ClearAndUpdateBack for each table it fetches and then
// SwapToBackAndUpdateFront once, giving the double-buffer semantics spec §9
// requires. Targeted refreshes call the UpdateX/DropX methods directly,
// without going through the back buffer.
type MetadataStore interface {
	ClearAndUpdateBack(table SchemaTable, rows []Row)
	SwapToBackAndUpdateFront()

	UpdateKeyspace(row Row)
	UpdateTableOrView(keyspace, name string, tableRow, viewRow, columnsRows, indexesRows []Row)
	UpdateUserType(row Row)
	UpdateFunction(row Row)
	UpdateAggregate(row Row)

	DropKeyspace(keyspace string)
	DropTableOrView(keyspace, name string)
	DropUserType(keyspace, name string)
	DropFunction(keyspace, name string, argumentTypes []string)
	DropAggregate(keyspace, name string, argumentTypes []string)
}

// KeyspaceMetadata is the minimal keyspace shape the token map needs.
type KeyspaceMetadata struct {
	Name            string
	ReplicationOpts map[string]string
}

// contextDefault is used internally wherever a background context is
// appropriate for a control-connection-issued query (spec §5: queries
// never carry user deadlines).
func contextDefault() context.Context { return context.Background() }
