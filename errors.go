package controlconn

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the session per spec §6, Error surfaces.
// These make forward progress impossible and stop the control connection.
var (
	// ErrNoHostsAvailable is surfaced when a query plan is exhausted while
	// the control connection is in NEW and has never reached READY.
	ErrNoHostsAvailable = errors.New("controlconn: no hosts available")

	// ErrUnableToDetermineProtocol is surfaced when protocol negotiation
	// is exhausted (current version has fallen to <= 1 and still fails).
	ErrUnableToDetermineProtocol = errors.New("controlconn: unable to determine protocol version")

	// ErrBadCredentials is surfaced on an authentication failure during
	// handshake.
	ErrBadCredentials = errors.New("controlconn: bad credentials")

	// ErrUnableToConnect is surfaced on a TLS/SSL failure during handshake.
	ErrUnableToConnect = errors.New("controlconn: unable to connect (ssl)")

	// ErrClosed names the closed state; no operation in this package
	// returns it, including after Shutdown.
	ErrClosed = errors.New("controlconn: control connection is closed")

	// ErrNoControlConnection is returned when a caller asks for the
	// current connection but none is established.
	ErrNoControlConnection = errors.New("controlconn: no control connection available")
)

// Internal, non-fatal error kinds. These never reach the session; they
// drive a reconnect or a dropped/logged event per spec §7.
var (
	errEmptyLocal          = errors.New("controlconn: system.local returned no rows")
	errInvalidResponse     = errors.New("controlconn: invalid response opcode")
	errStreamIDsExhausted  = errors.New("controlconn: stream id pool exhausted")
	errEmptyTargetedResult = errors.New("controlconn: targeted schema refresh returned no rows")
)

// PeerRowError explains why a system.peers row was rejected by the address
// resolver (spec §4.1). It is always non-fatal: the row is skipped.
type PeerRowError struct {
	Reason string
}

func (e *PeerRowError) Error() string {
	return fmt.Sprintf("controlconn: invalid peer row: %s", e.Reason)
}

func newPeerRowError(reason string) *PeerRowError {
	return &PeerRowError{Reason: reason}
}

// ProtocolError wraps an `invalid protocol` failure from the server,
// carrying the version that was rejected so callers/tests can inspect it.
type ProtocolError struct {
	Rejected ProtoVersion
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("controlconn: protocol version %v rejected: %v", e.Rejected, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
