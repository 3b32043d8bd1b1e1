package controlconn

import "net"

// ResolvePeerAddress derives the address used to contact a peer from a
// (peer, rpc_address) row pair, per spec §4.1. controlAddr is the address
// of the host we are currently connected to (used as the self-leak check;
// ports are not handled here).
//
// Grounded on gocql's hostInfoFromMap + isValidPeer (host_source.go,
// ring_describer.go), generalized into the six ordered rules spec.md
// lists explicitly, with a typed rejection reason per rule instead of a
// bare log line, so callers can distinguish "known server bug" from
// "malformed row" (spec §7, Malformed peer row: skip with warning).
func ResolvePeerAddress(controlAddr net.IP, peer net.IP, rpcAddress net.IP) (net.IP, error) {
	// Rule 1: peer must decode. By the time this function is called the
	// caller has already parsed the inet column; a nil peer means the
	// decode failed upstream.
	if peer == nil {
		return nil, newPeerRowError("invalid peer")
	}

	// Rule 2: rpc_address must be present.
	if rpcAddress == nil {
		return nil, newPeerRowError("no rpc_address")
	}

	// Rule 3 is likewise upstream: an unparsable rpc_address column never
	// reaches this function as a non-nil net.IP.

	// Rule 4: self-referential peer entry (known server bug).
	if rpcAddress.Equal(controlAddr) || peer.Equal(controlAddr) {
		return nil, newPeerRowError("self-referential peer entry")
	}

	// Rule 5: rpc_address is a wildcard bind-any address; substitute peer.
	if isWildcard(rpcAddress) {
		return peer, nil
	}

	// Rule 6.
	return rpcAddress, nil
}

func isWildcard(ip net.IP) bool {
	return ip.Equal(net.IPv4zero) || ip.Equal(net.IPv6unspecified)
}
