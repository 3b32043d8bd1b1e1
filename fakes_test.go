package controlconn

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/scylla-go/controlconn/events"
)

// Hand-written test doubles. The pack carries no mocking library (gocql's
// own tests use hand-rolled fakes throughout), so these follow that
// convention rather than introducing one.

type fakeSession struct {
	mu sync.Mutex

	hosts map[string]*Host
	md    *InMemoryMetadataStore

	addHostCalls    []*Host
	onAddCalls      []*Host
	onRemoveCalls   []*Host
	onUpCalls       []*Host
	onDownCalls     []*Host
	purgeCalls      []uint64
	rebalanceCalls  []*Host
	tokenMapAdds    []*Host
	tokenMapUpdates []*Host
	tokenMapRemoves []*Host

	readyCount int
	lastError  error

	queryPlanFactory func() QueryPlan
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		hosts: make(map[string]*Host),
		md:    NewInMemoryMetadataStore(),
	}
}

func (s *fakeSession) GetHost(address string) (*Host, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[address]
	return h, ok
}

func (s *fakeSession) AddHost(h *Host) (*Host, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := h.Address().String()
	if existing, ok := s.hosts[key]; ok {
		return existing, false
	}
	s.hosts[key] = h
	s.addHostCalls = append(s.addHostCalls, h)
	return h, true
}

func (s *fakeSession) OnAdd(h *Host)    { s.mu.Lock(); s.onAddCalls = append(s.onAddCalls, h); s.mu.Unlock() }
func (s *fakeSession) OnRemove(h *Host) { s.mu.Lock(); s.onRemoveCalls = append(s.onRemoveCalls, h); s.mu.Unlock() }
func (s *fakeSession) OnUp(h *Host) {
	s.mu.Lock()
	s.onUpCalls = append(s.onUpCalls, h)
	s.mu.Unlock()
	h.SetUp(true)
}
func (s *fakeSession) OnDown(h *Host) {
	s.mu.Lock()
	s.onDownCalls = append(s.onDownCalls, h)
	s.mu.Unlock()
	h.SetUp(false)
}

func (s *fakeSession) PurgeHosts(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeCalls = append(s.purgeCalls, gen)
	for k, h := range s.hosts {
		if h.Generation() != gen {
			delete(s.hosts, k)
		}
	}
}

func (s *fakeSession) NewQueryPlan() QueryPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryPlanFactory != nil {
		return s.queryPlanFactory()
	}
	hosts := make([]*Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, h)
	}
	return NewStartupQueryPlan(hosts, nil)
}

func (s *fakeSession) LoadBalancingPolicyHostAddRemove(h *Host) {
	s.mu.Lock()
	s.rebalanceCalls = append(s.rebalanceCalls, h)
	s.mu.Unlock()
}

func (s *fakeSession) TokenMapInit(partitioner string, hosts []*Host) {}
func (s *fakeSession) TokenMapHostsCleared()                         {}
func (s *fakeSession) TokenMapHostAdd(h *Host) {
	s.mu.Lock()
	s.tokenMapAdds = append(s.tokenMapAdds, h)
	s.mu.Unlock()
}
func (s *fakeSession) TokenMapHostUpdate(h *Host) {
	s.mu.Lock()
	s.tokenMapUpdates = append(s.tokenMapUpdates, h)
	s.mu.Unlock()
}
func (s *fakeSession) TokenMapHostRemove(h *Host) {
	s.mu.Lock()
	s.tokenMapRemoves = append(s.tokenMapRemoves, h)
	s.mu.Unlock()
}
func (s *fakeSession) TokenMapKeyspacesAdd(keyspaces []KeyspaceMetadata)    {}
func (s *fakeSession) TokenMapKeyspacesUpdate(keyspaces []KeyspaceMetadata) {}

func (s *fakeSession) Metadata() MetadataStore { return s.md }

func (s *fakeSession) OnControlConnectionReady() {
	s.mu.Lock()
	s.readyCount++
	s.mu.Unlock()
}

func (s *fakeSession) OnControlConnectionError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

// fakeConn is a canned-response Conn. Queries are matched by exact
// statement text; queryFunc, if set, answers every statement in place of
// the canned table (for parameterized targeted refreshes).
type fakeConn struct {
	mu        sync.Mutex
	responses map[string][]Row
	queryFunc func(stmt string, values []interface{}) ([]Row, error)
	events    chan events.Event
	closed    bool
	queries   []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		responses: make(map[string][]Row),
		events:    make(chan events.Event, 8),
	}
}

func (c *fakeConn) Query(ctx context.Context, stmt string, values ...interface{}) ([]Row, error) {
	return c.query(stmt, values)
}

func (c *fakeConn) QuerySystem(ctx context.Context, stmt string) ([]Row, error) {
	return c.query(stmt, nil)
}

func (c *fakeConn) query(stmt string, values []interface{}) ([]Row, error) {
	c.mu.Lock()
	c.queries = append(c.queries, stmt)
	c.mu.Unlock()

	if c.queryFunc != nil {
		if rows, err, ok := c.tryQueryFunc(stmt, values); ok {
			return rows, err
		}
	}
	if rows, ok := c.responses[stmt]; ok {
		return rows, nil
	}
	return nil, &QueryError{Kind: QueryErrorInvalidResponse, Err: fmt.Errorf("fakeConn: no response scripted for %q", stmt)}
}

func (c *fakeConn) tryQueryFunc(stmt string, values []interface{}) ([]Row, error, bool) {
	rows, err := c.queryFunc(stmt, values)
	return rows, err, true
}

func (c *fakeConn) RegisterEvents(ctx context.Context, eventTypes []string) error { return nil }

func (c *fakeConn) Events() <-chan events.Event { return c.events }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// fakeDialer dials one scripted (conn, err) pair per host address, in
// order; each call to Dial for a given host consumes the next scripted
// attempt.
type fakeDialer struct {
	mu       sync.Mutex
	attempts map[string][]dialAttempt
}

type dialAttempt struct {
	conn Conn
	err  error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{attempts: make(map[string][]dialAttempt)}
}

func (d *fakeDialer) script(host *Host, attempts ...dialAttempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[host.Address().String()] = attempts
}

func (d *fakeDialer) Dial(ctx context.Context, host *Host, proto ProtoVersion) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := host.Address().String()
	queue := d.attempts[key]
	if len(queue) == 0 {
		return nil, &DialError{Kind: DialErrorOther, Err: fmt.Errorf("fakeDialer: no more scripted attempts for %s", key)}
	}
	next := queue[0]
	d.attempts[key] = queue[1:]
	return next.conn, next.err
}

func ipHost(a, b, c, d byte) *Host {
	return NewHost(net.IPv4(a, b, c, d), 9042)
}
