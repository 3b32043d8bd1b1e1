package controlconn

import (
	"net"
	"sync"
)

// Host is the record the session owns and the core mutates a fixed subset
// of (spec §3, Host record). The session owns creation, removal, and the
// up/down flag; the core owns DataCenter, Rack, Version, ListenAddress and
// Tokens.
//
// Grounded on gocql's HostInfo (host_source.go): a mutex-guarded struct
// with accessor methods rather than exported fields, so concurrent reads
// from the data plane never race with a refresh in progress.
type Host struct {
	mu sync.RWMutex

	address       net.IP
	port          int
	hostID        string // optional; parsed as a UUID string when present
	listenAddress net.IP
	dataCenter    string
	rack          string
	version       CassandraVersion
	tokens        []string

	// justAdded is true from the moment the session adds the host until
	// the first single-host refresh triggered for it completes (spec
	// §4.6, NEW_NODE: "session will be told on add when refresh
	// completes"). The NEW_NODE handler clears it after calling OnAdd.
	justAdded bool

	// up is session-owned; the core never writes it directly, only
	// through Session.OnUp/OnDown.
	up bool

	// generation is the core's scan tag (spec §3 expansion): set to the
	// current scan's generation every time this host is observed during a
	// full scan, compared by the session against the scan's tag to decide
	// what to purge (Invariant 3, property P3).
	generation uint64
}

// NewHost constructs a host record for the given connect address and port.
// The core builds one for each peer row that passes the address resolver
// during a full scan and for each NEW_NODE event, and hands it to
// Session.AddHost, which may return an existing record instead.
func NewHost(address net.IP, port int) *Host {
	return &Host{address: address, port: port}
}

func (h *Host) Address() net.IP {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.address
}

func (h *Host) Port() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.port
}

func (h *Host) HostID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hostID
}

func (h *Host) ListenAddress() net.IP {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddress
}

func (h *Host) DataCenter() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dataCenter
}

func (h *Host) Rack() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rack
}

func (h *Host) Version() CassandraVersion {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *Host) Tokens() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tokens
}

func (h *Host) IsUp() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.up
}

func (h *Host) IsJustAdded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.justAdded
}

func (h *Host) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

func (h *Host) Equal(o *Host) bool {
	if h == o {
		return true
	}
	if h == nil || o == nil {
		return false
	}
	return h.Address().Equal(o.Address()) && h.Port() == o.Port()
}

// --- core-owned mutators (spec §3, Host record) ---

// setGeneration marks the host as observed in the given scan generation.
func (h *Host) setGeneration(gen uint64) {
	h.mu.Lock()
	h.generation = gen
	h.mu.Unlock()
}

// reconcile applies the fields a host/single-host refresh is allowed to
// touch (spec §4.4: "updates DC/rack ..., updates release version, updates
// listen-address, and updates tokens. It never removes."). It reports
// whether DC or rack changed, so the caller can invoke the session's
// rebalance callback only when required (spec §4.4).
func (h *Host) reconcile(dataCenter, rack string, version CassandraVersion, listenAddress net.IP, tokens []string) (dcOrRackChanged bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if dataCenter != "" && dataCenter != h.dataCenter {
		h.dataCenter = dataCenter
		dcOrRackChanged = true
	}
	if rack != "" && rack != h.rack {
		h.rack = rack
		dcOrRackChanged = true
	}
	if version != (CassandraVersion{}) {
		h.version = version
	}
	if listenAddress != nil {
		h.listenAddress = listenAddress
	}
	if tokens != nil {
		h.tokens = tokens
	}
	return dcOrRackChanged
}

func (h *Host) setHostID(id string) {
	h.mu.Lock()
	h.hostID = id
	h.mu.Unlock()
}

// --- session-owned mutators, exposed for a Session implementation to use ---

func (h *Host) SetUp(up bool) {
	h.mu.Lock()
	h.up = up
	h.mu.Unlock()
}

func (h *Host) SetJustAdded(justAdded bool) {
	h.mu.Lock()
	h.justAdded = justAdded
	h.mu.Unlock()
}

func (h *Host) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return "Host{" + h.address.String() + "}"
}
