// Package relaypb implements the wire messages of the Circuit Relay
// v2 HOP/STOP protocol family: HopMessage, StopMessage,
// Peer, Reservation, and Limit, proto3-wire-compatible.
//
// Full protoc-gen-go output requires a generated descriptor table that
// cannot be hand-authored reliably without running protoc, which this
// build is not allowed to do. These types instead encode/decode
// directly against google.golang.org/protobuf/encoding/protowire, the
// same module's low-level varint/tag/length-delimited primitives — see
// DESIGN.md for the full rationale. The wire bytes these types produce
// and consume are identical to what protoc-gen-go would generate for
// the message shapes below.
package relaypb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// HopMessageType is the HopMessage.type enum.
type HopMessageType int32

const (
	HopMessageReserve HopMessageType = 0
	HopMessageConnect HopMessageType = 1
	HopMessageStatus  HopMessageType = 2
)

// StopMessageType is the StopMessage.type enum.
type StopMessageType int32

const (
	StopMessageConnect StopMessageType = 0
	StopMessageStatus  StopMessageType = 1
)

// Status is the StatusCode enum, using the same integer
// values the original Circuit Relay v2 wire format assigns them so
// that on-the-wire bytes match a real implementation's.
type Status int32

const (
	StatusOK                    Status = 100
	StatusReservationRefused    Status = 200
	StatusResourceLimitExceeded Status = 201
	StatusPermissionDenied      Status = 202
	StatusConnectionFailed      Status = 203
	StatusNoReservation         Status = 204
	StatusMalformedMessage      Status = 400
	StatusUnexpectedMessage     Status = 401
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusReservationRefused:
		return "RESERVATION_REFUSED"
	case StatusResourceLimitExceeded:
		return "RESOURCE_LIMIT_EXCEEDED"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusConnectionFailed:
		return "CONNECTION_FAILED"
	case StatusNoReservation:
		return "NO_RESERVATION"
	case StatusMalformedMessage:
		return "MALFORMED_MESSAGE"
	case StatusUnexpectedMessage:
		return "UNEXPECTED_MESSAGE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// Peer is the HopMessage/StopMessage peer descriptor.
type Peer struct {
	ID    []byte
	Addrs [][]byte
}

// Limit mirrors wire Limit: duration in seconds, data in
// bytes, zero meaning unbounded on that axis.
type Limit struct {
	Duration uint32
	Data     uint64
}

// Reservation is the HOP STATUS reply's reservation payload.
type Reservation struct {
	Expire  uint64
	Addrs   [][]byte
	Voucher []byte
}

// HopMessage is the tagged union of the HOP protocol.
type HopMessage struct {
	Type        HopMessageType
	Peer        *Peer
	Reservation *Reservation
	Limit       *Limit
	Status      Status
	HasStatus   bool
}

// StopMessage is the tagged union of the STOP protocol.
type StopMessage struct {
	Type      StopMessageType
	Peer      *Peer
	Limit     *Limit
	Status    Status
	HasStatus bool
}

// ---- Peer ----

func marshalPeer(b []byte, num protowire.Number, p *Peer) []byte {
	if p == nil {
		return b
	}
	var inner []byte
	if len(p.ID) > 0 {
		inner = protowire.AppendTag(inner, 1, protowire.BytesType)
		inner = protowire.AppendBytes(inner, p.ID)
	}
	for _, a := range p.Addrs {
		inner = protowire.AppendTag(inner, 2, protowire.BytesType)
		inner = protowire.AppendBytes(inner, a)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func unmarshalPeer(data []byte) (*Peer, error) {
	p := &Peer{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			p.ID = append([]byte(nil), v...)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			p.Addrs = append(p.Addrs, append([]byte(nil), v...))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return p, nil
}

// ---- Limit ----

func marshalLimit(b []byte, num protowire.Number, l *Limit) []byte {
	if l == nil {
		return b
	}
	var inner []byte
	if l.Duration != 0 {
		inner = protowire.AppendTag(inner, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(l.Duration))
	}
	if l.Data != 0 {
		inner = protowire.AppendTag(inner, 2, protowire.VarintType)
		inner = protowire.AppendVarint(inner, l.Data)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func unmarshalLimit(data []byte) (*Limit, error) {
	l := &Limit{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			l.Duration = uint32(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			l.Data = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return l, nil
}

// ---- Reservation ----

func marshalReservation(b []byte, num protowire.Number, r *Reservation) []byte {
	if r == nil {
		return b
	}
	var inner []byte
	if r.Expire != 0 {
		inner = protowire.AppendTag(inner, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, r.Expire)
	}
	for _, a := range r.Addrs {
		inner = protowire.AppendTag(inner, 2, protowire.BytesType)
		inner = protowire.AppendBytes(inner, a)
	}
	if len(r.Voucher) > 0 {
		inner = protowire.AppendTag(inner, 3, protowire.BytesType)
		inner = protowire.AppendBytes(inner, r.Voucher)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func unmarshalReservation(data []byte) (*Reservation, error) {
	r := &Reservation{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Expire = v
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Addrs = append(r.Addrs, append([]byte(nil), v...))
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Voucher = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return r, nil
}

// ---- HopMessage ----

// Marshal encodes m to its proto3 wire bytes.
func (m *HopMessage) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = marshalPeer(b, 2, m.Peer)
	b = marshalReservation(b, 3, m.Reservation)
	b = marshalLimit(b, 4, m.Limit)
	if m.HasStatus {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Status))
	}
	return b, nil
}

// Unmarshal decodes data into m. Unknown fields are skipped.
func (m *HopMessage) Unmarshal(data []byte) error {
	*m = HopMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Type = HopMessageType(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p, err := unmarshalPeer(v)
			if err != nil {
				return err
			}
			m.Peer = p
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r, err := unmarshalReservation(v)
			if err != nil {
				return err
			}
			m.Reservation = r
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			l, err := unmarshalLimit(v)
			if err != nil {
				return err
			}
			m.Limit = l
			data = data[n:]
		case 5:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Status = Status(v)
			m.HasStatus = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// ---- StopMessage ----

// Marshal encodes m to its proto3 wire bytes.
func (m *StopMessage) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = marshalPeer(b, 2, m.Peer)
	b = marshalLimit(b, 3, m.Limit)
	if m.HasStatus {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Status))
	}
	return b, nil
}

// Unmarshal decodes data into m. Unknown fields are skipped.
func (m *StopMessage) Unmarshal(data []byte) error {
	*m = StopMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Type = StopMessageType(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p, err := unmarshalPeer(v)
			if err != nil {
				return err
			}
			m.Peer = p
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			l, err := unmarshalLimit(v)
			if err != nil {
				return err
			}
			m.Limit = l
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Status = Status(v)
			m.HasStatus = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}
