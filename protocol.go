package controlconn

import "fmt"

// ProtoVersion is a tagged wire-protocol version (spec §3, Negotiated
// protocol version v). The high bit marks the DSE lineage; the remaining
// bits hold either a Cassandra protocol version or a DSE sub-version.
type ProtoVersion uint32

const dseVersionFlag ProtoVersion = 1 << 31

// MaxSupportedCassandraVersion is the highest Cassandra-lineage protocol
// version this module negotiates down to when a DSE connection exhausts
// its sub-versions (spec §4.3).
const MaxSupportedCassandraVersion ProtoVersion = 4

// NewDSEProtoVersion builds a DSE-lineage version with the given
// sub-version.
func NewDSEProtoVersion(sub int) ProtoVersion {
	return dseVersionFlag | ProtoVersion(sub)
}

// IsDSE reports whether v belongs to the DSE lineage.
func (v ProtoVersion) IsDSE() bool {
	return v&dseVersionFlag != 0
}

// Number returns the Cassandra protocol version, or the DSE sub-version if
// IsDSE is true.
func (v ProtoVersion) Number() int {
	return int(v &^ dseVersionFlag)
}

func (v ProtoVersion) String() string {
	if v.IsDSE() {
		return fmt.Sprintf("DSEv%d", v.Number())
	}
	return fmt.Sprintf("v%d", v.Number())
}

// ProtocolNegotiator implements the descending protocol-version rule of
// spec §4.3. It is a pure state machine: Downgrade never performs I/O, it
// only computes what to try next, and remembers every version already
// rejected on the current host so a caller never retries one (spec P2).
//
// Negotiation always targets the same host (spec §4.3: "the negotiation is
// a property of the server, not of the network"); a new host gets a fresh
// ProtocolNegotiator.
type ProtocolNegotiator struct {
	current ProtoVersion
	tried   map[ProtoVersion]bool
}

// NewProtocolNegotiator starts negotiation from the given initial version.
func NewProtocolNegotiator(initial ProtoVersion) *ProtocolNegotiator {
	return &ProtocolNegotiator{
		current: initial,
		tried:   make(map[ProtoVersion]bool, 4),
	}
}

// Current returns the version that should be attempted next.
func (n *ProtocolNegotiator) Current() ProtoVersion {
	return n.current
}

// Downgrade records the current version as rejected and steps to the next
// candidate per the two-lineage rule. It reports false when negotiation is
// exhausted: either the rejected version was already <= 1 (Cassandra
// lineage floor), or stepping down would revisit an already-rejected
// version (which would otherwise loop forever between the two lineages).
func (n *ProtocolNegotiator) Downgrade() bool {
	if !n.current.IsDSE() && n.current.Number() <= 1 {
		return false
	}
	n.tried[n.current] = true

	var next ProtoVersion
	if n.current.IsDSE() {
		sub := n.current.Number()
		if sub > 1 {
			next = NewDSEProtoVersion(sub - 1)
		} else {
			next = MaxSupportedCassandraVersion
		}
	} else {
		next = n.current - 1
	}

	if n.tried[next] {
		return false
	}
	n.current = next
	return true
}
