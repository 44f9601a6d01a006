package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/multiformats/go-varint"
)

// Protocol codes, aligned with the multicodec table the same way
// pkg/lib/multiaddr/protocols.go aligns its P_* constants, so the
// binary form this package produces decodes the same way under a real
// multiaddr implementation.
const (
	pIP4        = 0x0004
	pTCP        = 0x0006
	pUDP        = 0x0111
	pIP6        = 0x0029
	pDNS        = 0x0035
	pDNS4       = 0x0036
	pDNS6       = 0x0037
	pP2P        = 0x01A5
	pP2PCircuit = 0x0122
)

// lengthPrefixedVarSize marks a protocol whose value is a varint
// length followed by that many bytes, rather than a fixed bit width.
const lengthPrefixedVarSize = -1

// Component is one decoded protocol segment of a Multiaddr, e.g.
// {Protocol: "tcp", Value: "4001"}.
type Component struct {
	Protocol string
	Value    string
}

// transcoder converts one protocol's value between its string form
// and its binary wire form.
type transcoder interface {
	stringToBytes(string) ([]byte, error)
	bytesToString([]byte) (string, error)
}

type protocol struct {
	name string
	code int
	// size is the value's bit width for a fixed-size protocol, 0 for a
	// protocol that carries no value (p2p-circuit), or
	// lengthPrefixedVarSize for a varint-length-prefixed value.
	size int
	tc   transcoder
}

type ip4Transcoder struct{}

func (ip4Transcoder) stringToBytes(s string) ([]byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("types: invalid ip4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("types: %q is not an ip4 address", s)
	}
	return ip4, nil
}

func (ip4Transcoder) bytesToString(b []byte) (string, error) {
	if len(b) != 4 {
		return "", fmt.Errorf("types: invalid ip4 value length %d", len(b))
	}
	return net.IP(b).String(), nil
}

type ip6Transcoder struct{}

func (ip6Transcoder) stringToBytes(s string) ([]byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("types: invalid ip6 address %q", s)
	}
	return ip.To16(), nil
}

func (ip6Transcoder) bytesToString(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("types: invalid ip6 value length %d", len(b))
	}
	return net.IP(b).String(), nil
}

type portTranscoder struct{}

func (portTranscoder) stringToBytes(s string) ([]byte, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("types: invalid port %q: %w", s, err)
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(port))
	return b, nil
}

func (portTranscoder) bytesToString(b []byte) (string, error) {
	if len(b) != 2 {
		return "", fmt.Errorf("types: invalid port value length %d", len(b))
	}
	return strconv.Itoa(int(binary.BigEndian.Uint16(b))), nil
}

type dnsTranscoder struct{}

func (dnsTranscoder) stringToBytes(s string) ([]byte, error) {
	if s == "" || strings.Contains(s, "/") {
		return nil, fmt.Errorf("types: invalid dns name %q", s)
	}
	return []byte(s), nil
}

func (dnsTranscoder) bytesToString(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("types: empty dns name")
	}
	return string(b), nil
}

// p2pTranscoder stores the identity's raw bytes verbatim rather than
// base58-decoding them, the same simplification
// pkg/lib/multiaddr/transcoder.go's p2p transcoder takes.
type p2pTranscoder struct{}

func (p2pTranscoder) stringToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("types: empty p2p value")
	}
	return []byte(s), nil
}

func (p2pTranscoder) bytesToString(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("types: empty p2p value")
	}
	return string(b), nil
}

var (
	protoIP4        = protocol{name: "ip4", code: pIP4, size: 32, tc: ip4Transcoder{}}
	protoTCP        = protocol{name: "tcp", code: pTCP, size: 16, tc: portTranscoder{}}
	protoUDP        = protocol{name: "udp", code: pUDP, size: 16, tc: portTranscoder{}}
	protoIP6        = protocol{name: "ip6", code: pIP6, size: 128, tc: ip6Transcoder{}}
	protoDNS        = protocol{name: "dns", code: pDNS, size: lengthPrefixedVarSize, tc: dnsTranscoder{}}
	protoDNS4       = protocol{name: "dns4", code: pDNS4, size: lengthPrefixedVarSize, tc: dnsTranscoder{}}
	protoDNS6       = protocol{name: "dns6", code: pDNS6, size: lengthPrefixedVarSize, tc: dnsTranscoder{}}
	protoP2P        = protocol{name: "p2p", code: pP2P, size: lengthPrefixedVarSize, tc: p2pTranscoder{}}
	protoP2PCircuit = protocol{name: "p2p-circuit", code: pP2PCircuit, size: 0}
)

var protocolsByCode = map[int]protocol{
	pIP4: protoIP4, pTCP: protoTCP, pUDP: protoUDP, pIP6: protoIP6,
	pDNS: protoDNS, pDNS4: protoDNS4, pDNS6: protoDNS6,
	pP2P: protoP2P, pP2PCircuit: protoP2PCircuit,
}

var protocolsByName = map[string]protocol{
	"ip4": protoIP4, "tcp": protoTCP, "udp": protoUDP, "ip6": protoIP6,
	"dns": protoDNS, "dns4": protoDNS4, "dns6": protoDNS6,
	"p2p": protoP2P, "p2p-circuit": protoP2PCircuit,
}

// readUvarint decodes the unsigned varint at the head of b, returning
// the value and the number of bytes it consumed.
func readUvarint(b []byte) (uint64, int, error) {
	r := bytes.NewReader(b)
	v, err := varint.ReadUvarint(r)
	if err != nil {
		return 0, 0, err
	}
	return v, len(b) - r.Len(), nil
}

// stringToBytes parses a "/proto/value/.../proto" string into its
// binary multiaddr encoding: a sequence of varint protocol codes, each
// followed by a (possibly varint-length-prefixed) value.
func stringToBytes(s string) ([]byte, error) {
	s = strings.TrimRight(s, "/")
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("types: multiaddr %q must begin with /", s)
	}
	parts := strings.Split(s, "/")[1:]
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
		return nil, fmt.Errorf("types: empty multiaddr")
	}

	var buf bytes.Buffer
	for len(parts) > 0 {
		name := parts[0]
		parts = parts[1:]
		proto, ok := protocolsByName[name]
		if !ok {
			return nil, fmt.Errorf("types: unknown protocol %q", name)
		}
		buf.Write(varint.ToUvarint(uint64(proto.code)))
		if proto.size == 0 {
			continue
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("types: protocol %s requires a value", name)
		}
		value := parts[0]
		parts = parts[1:]
		valueBytes, err := proto.tc.stringToBytes(value)
		if err != nil {
			return nil, err
		}
		if proto.size == lengthPrefixedVarSize {
			buf.Write(varint.ToUvarint(uint64(len(valueBytes))))
		}
		buf.Write(valueBytes)
	}
	return buf.Bytes(), nil
}

// decodeComponents walks the binary encoding b produces into its
// constituent Components.
func decodeComponents(b []byte) ([]Component, error) {
	var comps []Component
	for len(b) > 0 {
		code, n, err := readUvarint(b)
		if err != nil {
			return nil, fmt.Errorf("types: invalid protocol code: %w", err)
		}
		b = b[n:]
		proto, ok := protocolsByCode[int(code)]
		if !ok {
			return nil, fmt.Errorf("types: unknown protocol code %d", code)
		}
		if proto.size == 0 {
			comps = append(comps, Component{Protocol: proto.name})
			continue
		}

		size := proto.size / 8
		if proto.size == lengthPrefixedVarSize {
			length, n, err := readUvarint(b)
			if err != nil {
				return nil, fmt.Errorf("types: invalid length for %s: %w", proto.name, err)
			}
			b = b[n:]
			size = int(length)
		}
		if len(b) < size {
			return nil, fmt.Errorf("types: truncated %s value", proto.name)
		}
		valueBytes := b[:size]
		b = b[size:]

		value, err := proto.tc.bytesToString(valueBytes)
		if err != nil {
			return nil, fmt.Errorf("types: invalid %s value: %w", proto.name, err)
		}
		comps = append(comps, Component{Protocol: proto.name, Value: value})
	}
	return comps, nil
}

// Multiaddr is a self-describing network address: an ordered sequence
// of protocol/value components with both a string and a canonical
// binary representation.
type Multiaddr interface {
	Network() string
	String() string
	Bytes() []byte
	Equal(other Multiaddr) bool
	Protocols() []Component
	IsPublic() bool
	IsPrivate() bool
	IsLoopback() bool
}

type multiaddr struct {
	raw   []byte
	comps []Component
}

func newMultiaddr(raw []byte, comps []Component) *multiaddr {
	return &multiaddr{raw: append([]byte(nil), raw...), comps: comps}
}

// NewMultiaddr parses s into a Multiaddr, validating every component's
// value against its transcoder.
func NewMultiaddr(s string) (Multiaddr, error) {
	b, err := stringToBytes(s)
	if err != nil {
		return nil, err
	}
	comps, err := decodeComponents(b)
	if err != nil {
		return nil, err
	}
	return newMultiaddr(b, comps), nil
}

// NewMultiaddrBytes builds a Multiaddr from its canonical binary
// encoding, validating every component along the way. This is how
// address hints arriving over the wire (e.g. a CONNECT message's
// Peer.Addrs) are turned back into Multiaddrs.
func NewMultiaddrBytes(b []byte) (Multiaddr, error) {
	comps, err := decodeComponents(b)
	if err != nil {
		return nil, err
	}
	return newMultiaddr(b, comps), nil
}

// ParseMultiaddr is a convenience wrapper for callers that already
// trust s to be well-formed (configuration-supplied listen addresses,
// test fixtures): on a parse error it returns an address with no
// decoded components instead of panicking.
func ParseMultiaddr(s string) Multiaddr {
	m, err := NewMultiaddr(s)
	if err != nil {
		return &multiaddr{}
	}
	return m
}

func (m *multiaddr) Bytes() []byte { return m.raw }

func (m *multiaddr) String() string {
	var sb strings.Builder
	for _, c := range m.comps {
		sb.WriteByte('/')
		sb.WriteString(c.Protocol)
		if c.Value != "" {
			sb.WriteByte('/')
			sb.WriteString(c.Value)
		}
	}
	return sb.String()
}

func (m *multiaddr) Network() string {
	if len(m.comps) == 0 {
		return ""
	}
	return m.comps[0].Protocol
}

func (m *multiaddr) Equal(other Multiaddr) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(m.raw, other.Bytes())
}

func (m *multiaddr) Protocols() []Component {
	return append([]Component(nil), m.comps...)
}

func (m *multiaddr) hasProtocol(name string) bool {
	for _, c := range m.comps {
		if c.Protocol == name {
			return true
		}
	}
	return false
}

func (m *multiaddr) IsLoopback() bool {
	for _, c := range m.comps {
		switch {
		case c.Protocol == "ip4" && c.Value == "127.0.0.1":
			return true
		case c.Protocol == "ip6" && c.Value == "::1":
			return true
		}
	}
	return false
}

// IsPrivate reports whether the address names an RFC 1918 (or
// link-local) ip4 range, checking the 172.16.0.0/12 block precisely
// rather than the whole 172.0.0.0/8 family.
func (m *multiaddr) IsPrivate() bool {
	for _, c := range m.comps {
		if c.Protocol != "ip4" {
			continue
		}
		ip := net.ParseIP(c.Value)
		if ip == nil {
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		}
	}
	return m.IsLoopback()
}

func (m *multiaddr) IsPublic() bool {
	if !(m.hasProtocol("ip4") || m.hasProtocol("ip6") || m.hasProtocol("dns") ||
		m.hasProtocol("dns4") || m.hasProtocol("dns6")) {
		return false
	}
	return !m.IsPrivate() && !m.IsLoopback()
}

// AppendCircuit appends the "/p2p/<target>/p2p-circuit" suffix to
// relayAddr, producing the address a remote peer dials to reach
// target through this relay.
func AppendCircuit(relayAddr Multiaddr, target PeerID) Multiaddr {
	return ParseMultiaddr(strings.TrimRight(relayAddr.String(), "/") + "/p2p/" + target.String() + "/p2p-circuit")
}
