package interfaces

import "github.com/dep2p/relay-hop/pkg/types"

// Gater bundles the three authorization predicates consulted at the
// relay's admission and dial points. Each field is
// optional; a nil predicate permits. Implementations must be
// side-effect free and safe for concurrent use — the handler calls
// them outside any lock it holds, but may call them from many
// goroutines concurrently.
type Gater struct {
	// DenyInboundRelayReservation is consulted before admitting a
	// RESERVE from peer.
	DenyInboundRelayReservation func(peer types.PeerID) bool

	// DenyOutboundRelayedConnection is consulted before the relay
	// dials a STOP stream to target on behalf of source.
	DenyOutboundRelayedConnection func(source, target types.PeerID) bool

	// DenyInboundRelayedConnection is consulted by the STOP-side
	// acceptor, i.e. the target peer's own relay client, before
	// accepting an incoming relayed connection announced by relay on
	// behalf of source. It is exposed here for STOP-side embedders;
	// the HOP relay itself never calls it.
	DenyInboundRelayedConnection func(relay, source types.PeerID) bool
}

func (g Gater) denyReservation(peer types.PeerID) bool {
	if g.DenyInboundRelayReservation == nil {
		return false
	}
	return g.DenyInboundRelayReservation(peer)
}

func (g Gater) denyOutboundConnect(source, target types.PeerID) bool {
	if g.DenyOutboundRelayedConnection == nil {
		return false
	}
	return g.DenyOutboundRelayedConnection(source, target)
}

// DenyReservation reports whether peer must be refused a reservation.
func (g Gater) DenyReservation(peer types.PeerID) bool { return g.denyReservation(peer) }

// DenyOutboundConnect reports whether a CONNECT from source to target
// must be refused before the STOP dial is attempted.
func (g Gater) DenyOutboundConnect(source, target types.PeerID) bool {
	return g.denyOutboundConnect(source, target)
}
