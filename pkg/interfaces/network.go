// Package interfaces defines the narrow surface this module consumes
// from its host: a connection manager/transport, a protocol
// registrar, an address book, and a peer store. These are external
// collaborators the relay core never implements, only calls through.
package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/dep2p/relay-hop/pkg/types"
)

// Stream is a bidirectional byte stream carrying one protocol's
// framed messages, narrowed to the operations this module actually
// needs: read, write, close, and deadline bounding.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// CloseWrite half-closes the write side, signalling EOF to the
	// remote reader without discarding unread inbound data.
	CloseWrite() error

	// Reset aborts the stream immediately, without waiting for
	// in-flight data to flush. Used on protocol and transport errors.
	Reset() error
}

// Connection is an established, possibly-multiplexed link to a
// remote peer.
type Connection interface {
	RemotePeer() types.PeerID

	// NewStream opens a new stream on this connection negotiating the
	// given protocol codec.
	NewStream(ctx context.Context, protocolID string) (Stream, error)

	Close() error
}

// ConnectionManager opens connections to peers, reusing an existing
// connection when one is already established, narrowed to the one
// operation the relay core needs: open a connection to peer P.
type ConnectionManager interface {
	Open(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) (Connection, error)
}

// StreamHandler is invoked for each inbound stream opened against a
// registered protocol codec.
type StreamHandler func(s Stream, remote types.PeerID)

// Registrar registers and unregisters protocol handlers with the
// host's stream multiplexer.
type Registrar interface {
	Handle(protocolID string, h StreamHandler)
	Unhandle(protocolID string)
}

// AddressManager supplies the relay's own externally reachable
// addresses, used to build RESERVE reply addrs.
type AddressManager interface {
	Addresses() []types.Multiaddr
}

// Tags is the tag bundle merged into the peer store for a relay
// source peer; ttl is expressed as milliseconds.
type Tags struct {
	Name  string
	Value int
	TTLMs int64
}

// PeerStore is the subset of the host's peer store this module calls
// through: *merge tags for peer P*.
type PeerStore interface {
	Merge(p types.PeerID, tags Tags) error
}
