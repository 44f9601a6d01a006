package relay

import (
	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/types"
)

var taggerLog = logging.Logger("relay.tagger")

// relaySourceTag is the tag name applied to peers holding a live
// reservation.
const relaySourceTag = "relay-source"

// tagPeer best-effort-marks peer as a relay source so the host does
// not evict its connection. Failures are logged and swallowed:
// tagging must never affect the RESERVE reply.
func tagPeer(store interfaces.PeerStore, peer types.PeerID, ttlMs int64) {
	if store == nil {
		return
	}
	err := store.Merge(peer, interfaces.Tags{
		Name:  relaySourceTag,
		Value: 1,
		TTLMs: ttlMs,
	})
	if err != nil {
		taggerLog.Warn("peer tag failed", "peer", peer.String(), "err", err)
	}
}
