package controlconn

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/scylla-go/controlconn/events"
	"github.com/stretchr/testify/require"
)

func allModernSchemaResponses(conn *fakeConn) {
	for _, q := range []string{
		qryModernKeyspaces, qryModernTables, qryModernColumns,
		qryModernViews, qryModernIndexes, qryModernUserTypes,
		qryModernFunctions, qryModernAggregates,
	} {
		conn.responses[q] = nil
	}
}

// TestControlConn_FreshConnectThreeNodeCluster is spec §8 scenario 1.
func TestControlConn_FreshConnectThreeNodeCluster(t *testing.T) {
	hostA := ipHost(10, 0, 0, 1)
	hostB := ipHost(10, 0, 0, 2)
	hostC := ipHost(10, 0, 0, 3)
	_, _ = hostA, hostC

	session := newFakeSession()
	dialer := newFakeDialer()
	conn := newFakeConn()

	conn.responses[qrySystemLocal] = []Row{{
		"host_id": "", "data_center": "dc1", "rack": "r1",
		"release_version": "3.11.0", "partitioner": "murmur3", "tokens": []string{"1"},
	}}
	conn.responses[qrySystemPeers] = []Row{
		{"peer": net.IPv4(10, 0, 0, 1), "rpc_address": net.IPv4(10, 0, 0, 1), "data_center": "dc1", "rack": "r1", "release_version": "3.11.0", "tokens": []string{"2"}},
		{"peer": net.IPv4(10, 0, 0, 3), "rpc_address": net.IPv4(10, 0, 0, 3), "data_center": "dc1", "rack": "r1", "release_version": "3.11.0", "tokens": []string{"3"}},
	}
	allModernSchemaResponses(conn)

	dialer.script(hostB, dialAttempt{conn: conn, err: nil})

	cc := NewControlConn(session, dialer, &Config{})
	cc.wg.Add(1)
	go cc.connectLoop(context.Background(), NewStartupQueryPlan([]*Host{hostB}, nil), true)

	require.Eventually(t, func() bool {
		return cc.State() == StateReady
	}, time.Second, time.Millisecond)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Equal(t, 1, session.readyCount)
	require.Len(t, session.addHostCalls, 2)
	require.Equal(t, CassandraVersion{Major: 3, Minor: 11, Patch: 0}, hostB.Version())
}

// TestControlConn_ProtocolDowngradeRetriesSameHost is spec §8 scenario 2:
// repeated invalid-protocol rejections against the same host step the
// negotiator down the Cassandra lineage until one version succeeds,
// without ever advancing the query plan to a different host.
func TestControlConn_ProtocolDowngradeRetriesSameHost(t *testing.T) {
	host := ipHost(10, 0, 0, 1)
	session := newFakeSession()
	dialer := newFakeDialer()

	conn := newFakeConn()
	conn.responses[qrySystemLocal] = []Row{{
		"data_center": "dc1", "rack": "r1", "release_version": "3.11.0",
		"partitioner": "murmur3", "tokens": []string{"1"},
	}}
	conn.responses[qrySystemPeers] = nil
	allModernSchemaResponses(conn)

	dialer.script(host,
		dialAttempt{err: &DialError{Kind: DialErrorInvalidProtocol, Err: errors.New("invalid protocol")}},
		dialAttempt{err: &DialError{Kind: DialErrorInvalidProtocol, Err: errors.New("invalid protocol")}},
		dialAttempt{conn: conn, err: nil},
	)

	cc := NewControlConn(session, dialer, &Config{ProtoVersion: 4})
	negotiator := NewProtocolNegotiator(cc.cfg.ProtoVersion)
	ok := cc.connectHost(context.Background(), host, negotiator)

	require.True(t, ok)
	require.Equal(t, StateReady, cc.State())
	require.Equal(t, ProtoVersion(2), negotiator.Current())
	require.True(t, negotiator.tried[ProtoVersion(4)])
	require.True(t, negotiator.tried[ProtoVersion(3)])
}

// TestControlConn_ProtocolExhaustion is spec §8 scenario 3.
func TestControlConn_ProtocolExhaustion(t *testing.T) {
	host := ipHost(10, 0, 0, 9)
	session := newFakeSession()
	dialer := newFakeDialer()
	dialer.script(host, dialAttempt{
		err: &DialError{Kind: DialErrorInvalidProtocol, Err: errors.New("invalid protocol")},
	})

	cc := NewControlConn(session, dialer, &Config{ProtoVersion: 1})
	cc.wg.Add(1)
	go cc.connectLoop(context.Background(), NewStartupQueryPlan([]*Host{host}, nil), true)

	require.Eventually(t, func() bool {
		return cc.State() == StateClosed
	}, time.Second, time.Millisecond)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.ErrorIs(t, session.lastError, ErrUnableToDetermineProtocol)
}

// TestControlConn_NoHostsAvailableIsFatalFromNew covers the NEW "query
// plan exhausted" row of spec §4.2.
func TestControlConn_NoHostsAvailableIsFatalFromNew(t *testing.T) {
	session := newFakeSession()
	dialer := newFakeDialer()
	cc := NewControlConn(session, dialer, &Config{})

	cc.wg.Add(1)
	go cc.connectLoop(context.Background(), NewStartupQueryPlan(nil, nil), true)

	require.Eventually(t, func() bool {
		return cc.State() == StateClosed
	}, time.Second, time.Millisecond)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.ErrorIs(t, session.lastError, ErrNoHostsAvailable)
}

// TestControlConn_SocketClosedThenPlanExhaustedRetries is spec §8 scenario
// 6: the socket closes while READY, the immediate reconnect's query plan
// is exhausted (no other host available yet), and the deferred retry
// succeeds once ReconnectInterval has elapsed.
func TestControlConn_SocketClosedThenPlanExhaustedRetries(t *testing.T) {
	host := ipHost(10, 0, 0, 1)
	session := newFakeSession()
	session.hosts[host.Address().String()] = host
	dialer := newFakeDialer()

	retryConn := newFakeConn()
	retryConn.responses[qrySystemLocal] = []Row{{
		"data_center": "dc1", "rack": "r1", "release_version": "3.11.0",
		"partitioner": "murmur3", "tokens": []string{"1"},
	}}
	retryConn.responses[qrySystemPeers] = nil
	allModernSchemaResponses(retryConn)

	dialer.script(host,
		dialAttempt{err: &DialError{Kind: DialErrorOther, Err: errors.New("connection refused")}},
		dialAttempt{conn: retryConn, err: nil},
	)

	cc := NewControlConn(session, dialer, &Config{ReconnectInterval: 20 * time.Millisecond})
	cc.state.Store(int32(StateReady))
	closedConn := newFakeConn()
	cc.conn = closedConn
	cc.host = host

	cc.wg.Add(1)
	closedConn.Close()
	cc.readEvents(closedConn)

	require.Eventually(t, func() bool {
		return cc.State() == StateReady && cc.currentConn() == retryConn
	}, time.Second, time.Millisecond)
}

// TestControlConn_EventsIgnoredBeforeReady is property P6.
func TestControlConn_EventsIgnoredBeforeReady(t *testing.T) {
	session := newFakeSession()
	dialer := newFakeDialer()
	cc := NewControlConn(session, dialer, &Config{})
	require.Equal(t, StateNew, cc.State())

	host := ipHost(10, 0, 0, 5)
	session.hosts[host.Address().String()] = host

	cc.handleEvent(&events.StatusChangeEvent{Change: "UP", Host: host.Address(), Port: 9042})

	session.mu.Lock()
	defer session.mu.Unlock()
	require.Empty(t, session.onUpCalls)
	require.False(t, host.IsUp())
}

// TestControlConn_UpEventIsIdempotent is property P7.
func TestControlConn_UpEventIsIdempotent(t *testing.T) {
	session := newFakeSession()
	dialer := newFakeDialer()
	cc := NewControlConn(session, dialer, &Config{})
	cc.state.Store(int32(StateReady))

	host := ipHost(10, 0, 0, 5)
	session.hosts[host.Address().String()] = host

	for i := 0; i < 3; i++ {
		cc.handleEvent(&events.StatusChangeEvent{Change: "UP", Host: host.Address(), Port: 9042})
	}

	require.True(t, host.IsUp())
	session.mu.Lock()
	defer session.mu.Unlock()
	require.Len(t, session.onUpCalls, 3)
}
