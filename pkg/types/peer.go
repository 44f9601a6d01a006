// Package types defines the base identity and limit types shared across
// the relay packages.
package types

import "encoding/base64"

// PeerID is an opaque peer identity. The raw identity bytes are stored
// directly in the string so that PeerID remains a valid, hashable map
// key — the same representation libp2p's own peer.ID uses.
type PeerID string

// Empty reports whether id carries no bytes.
func (id PeerID) Empty() bool {
	return len(id) == 0
}

// Bytes returns the raw identity bytes.
func (id PeerID) Bytes() []byte {
	return []byte(id)
}

// String returns a short printable form of the identity for logging.
// It is not a canonical external representation.
func (id PeerID) String() string {
	if id.Empty() {
		return ""
	}
	s := base64.RawURLEncoding.EncodeToString(id.Bytes())
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// PeerIDFromBytes builds a PeerID from raw identity bytes.
func PeerIDFromBytes(b []byte) PeerID {
	return PeerID(b)
}

// Limit bounds a relayed connection on two independent axes. A zero
// value on either field means "unbounded on that axis".
type Limit struct {
	// Data is the maximum number of bytes forwarded across the
	// relayed connection, summed over both directions. Zero disables
	// the cap.
	Data uint64

	// Duration is the maximum wall-clock lifetime of the relayed
	// connection. Zero disables the cap.
	Duration uint32 // seconds, matches the wire representation
}

// Unbounded reports whether the limit imposes no cap at all.
func (l Limit) Unbounded() bool {
	return l.Data == 0 && l.Duration == 0
}
