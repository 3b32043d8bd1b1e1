package controlconn

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// This file implements the "Host refresh" component of spec §4.4: the
// full scan run on every successful connect, and the single-host refresh
// triggered by NEW_NODE/MOVED_NODE/UP events.
//
// Row values are assumed to already be typed by the wire-codec
// collaborator the way gocql's marshaling does: inet columns decode to
// net.IP, a `tokens` column decodes to []string, `release_version`
// decodes to string (spec §2: the wire-format codec is out of scope,
// consumed here as already-typed rows).

func rowString(r Row, col string) string {
	v, _ := r[col].(string)
	return v
}

func rowIP(r Row, col string) net.IP {
	v, _ := r[col].(net.IP)
	return v
}

func rowTokens(r Row) []string {
	v, _ := r["tokens"].([]string)
	return v
}

// rowHostID parses the optional `host_id` column (expansion, SPEC_FULL.md
// "Host identity"); returns "" when absent or unparsable rather than
// erroring, since no invariant depends on it.
func rowHostID(r Row, c *Config) string {
	raw := rowString(r, "host_id")
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.Logger.Printf("controlconn: malformed host_id %q: %v", raw, err)
		return ""
	}
	return id.String()
}

// fullHostScan executes the chained (local, peers) read, resolves every
// peer row through the address resolver, and reconciles the result into
// the session (spec §4.4, Full scan). It returns the parsed server
// version from the `local` row, which the caller assigns to V exactly
// once (Invariant 4).
//
// Grounded on gocql's refreshRing (host_source.go) and setupConn
// (control.go), collapsed into one function per the single-state-machine
// design note (spec §9).
func (c *ControlConn) fullHostScan(ctx context.Context, conn Conn, controlHost *Host) (CassandraVersion, error) {
	chain, err := c.runHostScanChain(ctx, conn)
	if err != nil {
		return CassandraVersion{}, err
	}

	if len(chain.Local) == 0 {
		// spec §4.4: "local must have >= 1 row; else the connection is
		// defuncted (server still bootstrapping)".
		return CassandraVersion{}, errEmptyLocal
	}
	localRow := chain.Local[0]

	version, err := ParseCassandraVersion(rowString(localRow, "release_version"))
	if err != nil {
		// spec §7: "Version parse failure: warn; keep previous V". The
		// previous V is the version of the last control host (zero on a
		// first connect); the scan itself carries on.
		c.cfg.Logger.Printf("controlconn: could not parse release_version: %v", err)
		version = c.currentVersion()
	}

	controlHost.reconcile(rowString(localRow, "data_center"), rowString(localRow, "rack"), version, nil, rowTokens(localRow))
	if id := rowHostID(localRow, c.cfg); id != "" {
		controlHost.setHostID(id)
	}

	gen := c.nextGeneration()
	controlHost.setGeneration(gen)

	var tokenHosts []*Host
	if c.cfg.TokenAwareRouting {
		tokenHosts = append(tokenHosts, controlHost)
	}

	controlAddr := controlHost.Address()
	for _, peerRow := range chain.Peers {
		peer := rowIP(peerRow, "peer")
		rpcAddress := rowIP(peerRow, "rpc_address")

		addr, rerr := ResolvePeerAddress(controlAddr, peer, rpcAddress)
		if rerr != nil {
			c.cfg.Logger.Printf("controlconn: skipping peer row: %v", rerr)
			continue
		}

		host, added := c.session.AddHost(NewHost(addr, c.cfg.Port))
		if added {
			host.reconcile(rowString(peerRow, "data_center"), rowString(peerRow, "rack"), CassandraVersion{}, nil, rowTokens(peerRow))
		} else {
			dcOrRackChanged := host.reconcile(rowString(peerRow, "data_center"), rowString(peerRow, "rack"), CassandraVersion{}, nil, rowTokens(peerRow))
			if dcOrRackChanged && !host.IsJustAdded() {
				c.session.LoadBalancingPolicyHostAddRemove(host)
			}
		}
		host.setGeneration(gen)
		if id := rowHostID(peerRow, c.cfg); id != "" {
			host.setHostID(id)
		}

		if c.cfg.TokenAwareRouting {
			tokenHosts = append(tokenHosts, host)
			if added {
				c.session.TokenMapHostAdd(host)
			} else {
				c.session.TokenMapHostUpdate(host)
			}
		}
	}

	c.session.PurgeHosts(gen)

	return version, nil
}

// singleHostRefresh implements spec §4.4's single-host refresh: query
// `local` if target is the control host, otherwise `peers WHERE
// peer=<listen_address>`, falling back to a full peers scan filtered
// client-side when the host's listen address is unknown.
func (c *ControlConn) singleHostRefresh(ctx context.Context, conn Conn, controlHost, target *Host) error {
	var row Row
	var found bool

	if target.Equal(controlHost) {
		rows, err := c.runSingle(ctx, conn, qrySystemLocal)
		if err != nil {
			return err
		}
		if len(rows.Rows) > 0 {
			row, found = rows.Rows[0], true
		}
	} else {
		listenAddr := target.ListenAddress()
		if listenAddr != nil {
			stmt := fmt.Sprintf("SELECT * FROM system.peers WHERE peer='%s'", listenAddr.String())
			rows, err := c.runSingle(ctx, conn, stmt)
			if err != nil {
				return err
			}
			if len(rows.Rows) > 0 {
				row, found = rows.Rows[0], true
			}
		} else {
			rows, err := c.runSingle(ctx, conn, qrySystemPeers)
			if err != nil {
				return err
			}
			for _, r := range rows.Rows {
				addr := rowIP(r, "rpc_address")
				if addr != nil && addr.Equal(target.Address()) {
					row, found = r, true
					break
				}
			}
		}
	}

	if !found {
		// spec §4.4: "A single refresh with no matching row logs an error
		// and ignores the event; it never defuncts."
		c.cfg.Logger.Printf("controlconn: single-host refresh for %s found no matching row", target)
		return nil
	}

	version := target.Version()
	if v := rowString(row, "release_version"); v != "" {
		if parsed, err := ParseCassandraVersion(v); err == nil {
			version = parsed
		}
	}

	dcOrRackChanged := target.reconcile(rowString(row, "data_center"), rowString(row, "rack"), version, rowIP(row, "listen_address"), rowTokens(row))
	if id := rowHostID(row, c.cfg); id != "" {
		target.setHostID(id)
	}
	if dcOrRackChanged && !target.IsJustAdded() {
		c.session.LoadBalancingPolicyHostAddRemove(target)
	}
	return nil
}
