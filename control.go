package controlconn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/scylla-go/controlconn/debounce"
)

// State is the control connection's lifecycle state (spec §3, §4.2).
type State int32

const (
	StateNew State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ControlConn is the control connection state machine (spec §4.2). It owns
// at most one socket at a time (Invariant 1), a reconnect timer, and the
// current control host.
//
// Grounded on gocql's controlConn (control.go): a struct guarded by a
// mutex plus an atomic state word, rather than the callback-graph design
// the cpp-driver original uses (spec §9, "Callback graph vs. single state
// machine").
type ControlConn struct {
	cfg     *Config
	session Session
	dialer  Dialer
	rng     *rand.Rand

	state atomic.Int32

	mu        sync.Mutex
	conn      Conn
	host      *Host
	closeOnce sync.Once
	closeCh   chan struct{}

	generation atomic.Uint64

	// reconnectDebouncer coalesces bursts of reconnect requests into one
	// underlying doReconnect call (spec §2 expansion, Debounce component).
	// The socket-closed path uses RefreshNow to bypass the delay; the
	// plan-exhausted retry path uses Debounce so repeated exhaustions
	// collapse into a single retry instead of a pile of timers.
	reconnectDebouncer *debounce.Debouncer

	wg sync.WaitGroup
}

// NewControlConn builds an idle control connection. Call Start to begin
// connecting.
func NewControlConn(session Session, dialer Dialer, cfg *Config) *ControlConn {
	c := &ControlConn{
		cfg:     cfg.withDefaults(),
		session: session,
		dialer:  dialer,
		closeCh: make(chan struct{}),
	}
	c.reconnectDebouncer = debounce.New(c.cfg.ReconnectInterval, c.doReconnect)
	return c
}

func (c *ControlConn) nextGeneration() uint64 {
	return c.generation.Add(1)
}

// State returns the current lifecycle state.
func (c *ControlConn) State() State {
	return State(c.state.Load())
}

// Start transitions NEW → NEW (spec §4.2's "start" row: it is a self-loop
// that kicks off connecting) by building the startup query plan over hosts
// and beginning the first connect attempt. It must be called at most once.
func (c *ControlConn) Start(ctx context.Context, hosts []*Host) error {
	if len(hosts) == 0 {
		return ErrNoHostsAvailable
	}
	c.state.Store(int32(StateNew))

	plan := NewStartupQueryPlan(hosts, c.rng)
	c.wg.Add(1)
	go c.connectLoop(ctx, plan, true)
	return nil
}

// connectLoop drives one pass over plan, dialing each host in turn until
// one succeeds or the plan is exhausted (spec §4.2). fromNew distinguishes
// the NEW-state disposition (fatal on exhaustion) from the READY-state
// reconnect disposition (deferred retry timer, spec §4.2's "query plan
// exhausted during reconnect" row).
func (c *ControlConn) connectLoop(ctx context.Context, plan QueryPlan, fromNew bool) {
	defer c.wg.Done()

	for {
		host, ok := plan.Next()
		if !ok {
			c.onPlanExhausted(fromNew)
			return
		}

		negotiator := NewProtocolNegotiator(c.cfg.ProtoVersion)
		if c.connectHost(ctx, host, negotiator) {
			return
		}
		// connectHost returning false means "advance plan, retry" (other
		// dial error, a TLS failure while READY, or a failed post-connect
		// sequence); we move to the next host in the plan.
	}
}

// connectHost repeatedly dials host, negotiating the protocol version down
// on invalid-protocol failures (spec §4.3), and returns true once the
// connection reaches READY or a fatal error has been surfaced and the
// control connection closed. It returns false when the caller should move
// to the next host in the plan.
func (c *ControlConn) connectHost(ctx context.Context, host *Host, negotiator *ProtocolNegotiator) bool {
	for {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		conn, err := c.dialer.Dial(dialCtx, host, negotiator.Current())
		cancel()

		if err == nil {
			if c.onConnectOK(ctx, conn, host) {
				return true
			}
			// onConnectOK already defuncted conn on failure; treat as a
			// dial failure of kind "other" and move to the next host.
			return false
		}

		var dialErr *DialError
		if !errors.As(err, &dialErr) {
			dialErr = &DialError{Kind: DialErrorOther, Err: err}
		}

		switch dialErr.Kind {
		case DialErrorInvalidProtocol:
			if negotiator.Downgrade() {
				c.cfg.Metrics.IncProtocolDowngrade()
				continue // retry same host at the new version
			}
			c.surfaceFatal(ErrUnableToDetermineProtocol)
			return true
		case DialErrorAuth:
			c.surfaceFatal(fmt.Errorf("%w: %v", ErrBadCredentials, dialErr.Err))
			return true
		case DialErrorTLS:
			if c.State() == StateReady {
				return false
			}
			c.surfaceFatal(fmt.Errorf("%w: %v", ErrUnableToConnect, dialErr.Err))
			return true
		default:
			return false
		}
	}
}

// onConnectOK runs the post-connect sequence: full host scan, optional
// schema bulk read, event registration, then promotion to READY (spec
// §4.2's "connect ok" and "host/schema scan ok" rows). It reports whether
// the control connection is now established on conn.
func (c *ControlConn) onConnectOK(ctx context.Context, conn Conn, host *Host) bool {
	version, err := c.fullHostScan(ctx, conn, host)
	if err != nil {
		c.cfg.Logger.Printf("controlconn: host scan against %s failed: %v", host, err)
		conn.Close()
		return false
	}

	if plan := bulkPlan(version, !c.cfg.DisableSchemaEvents, c.cfg.TokenAwareRouting); len(plan) > 0 {
		chain, err := c.runSchemaChain(ctx, conn, plan, version)
		if err != nil {
			c.cfg.Logger.Printf("controlconn: schema bulk read against %s failed: %v", host, err)
			conn.Close()
			return false
		}
		store := c.session.Metadata()
		for _, t := range plan {
			store.ClearAndUpdateBack(t, chain[t])
		}
		store.SwapToBackAndUpdateFront()
		c.cfg.Metrics.ObserveSchemaRefresh(len(plan))
	}

	if err := conn.RegisterEvents(ctx, c.eventTypes()); err != nil {
		c.cfg.Logger.Printf("controlconn: event registration against %s failed: %v", host, err)
		conn.Close()
		return false
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close() // Invariant 1: at most one open socket at a time.
	}
	c.conn = conn
	c.host = host
	c.mu.Unlock()

	wasReady := c.state.Swap(int32(StateReady)) == int32(StateReady)
	if !wasReady {
		c.session.OnControlConnectionReady()
	}

	c.wg.Add(1)
	go c.readEvents(conn)
	return true
}

// readEvents pumps conn's event channel into handleEvent until it closes,
// then schedules a reconnect (spec §4.2, "socket closed" row).
func (c *ControlConn) readEvents(conn Conn) {
	defer c.wg.Done()
	for ev := range conn.Events() {
		c.handleEvent(ev)
	}

	if c.State() == StateClosed {
		return
	}

	c.mu.Lock()
	sameConn := c.conn == conn
	if sameConn {
		c.conn = nil
	}
	c.mu.Unlock()
	if !sameConn {
		// A newer connection already superseded this one; nothing to do
		// (spec §5, Cancellation: "re-check that the current socket
		// pointer is still non-null").
		return
	}

	c.cfg.Logger.Printf("controlconn: control connection lost, reconnecting")
	c.reconnectDebouncer.RefreshNow()
}

// doReconnect re-runs the full host scan on a fresh plan from
// Session.NewQueryPlan (spec Invariant 3: "a reconnect always re-runs the full host scan, never
// relies on cached topology"). It is reconnectDebouncer's underlying call,
// invoked on the debouncer's own goroutine.
func (c *ControlConn) doReconnect() error {
	plan := c.session.NewQueryPlan()
	c.wg.Add(1)
	c.connectLoop(contextDefault(), plan, false)
	return nil
}

// onPlanExhausted implements spec §4.2's two different exhaustion
// dispositions.
func (c *ControlConn) onPlanExhausted(fromNew bool) {
	if fromNew {
		c.surfaceFatal(ErrNoHostsAvailable)
		return
	}
	c.cfg.Logger.Printf("controlconn: query plan exhausted during reconnect, retrying in %s", c.cfg.ReconnectInterval)
	c.reconnectDebouncer.Debounce()
	c.cfg.Metrics.IncReconnect()
}

// surfaceFatal reports err to the session and moves to CLOSED (spec §4.2's
// NEW auth/ssl row and §6, Error surfaces).
func (c *ControlConn) surfaceFatal(err error) {
	c.state.Store(int32(StateClosed))
	c.session.OnControlConnectionError(err)
}

// Shutdown closes the control connection (spec §4.2, "any -> shutdown").
// It is idempotent and safe to call from any goroutine.
func (c *ControlConn) Shutdown() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closeCh)
		c.reconnectDebouncer.Stop()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
	})
	c.wg.Wait()
	return nil
}

// eventTypes returns the REGISTER event mask as wire event-type names
// (spec §3, Event mask E and §6, Event subscription).
func (c *ControlConn) eventTypes() []string {
	var types []string
	if !c.cfg.DisableTopologyEvents {
		types = append(types, "TOPOLOGY_CHANGE")
	}
	if !c.cfg.DisableStatusEvents {
		types = append(types, "STATUS_CHANGE")
	}
	if c.cfg.schemaEventsEnabled() {
		types = append(types, "SCHEMA_CHANGE")
	}
	return types
}

// CurrentHost returns the host the control connection is currently
// established on, or ErrNoControlConnection if none.
func (c *ControlConn) CurrentHost() (*Host, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host == nil {
		return nil, ErrNoControlConnection
	}
	return c.host, nil
}

func (c *ControlConn) currentConn() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
