package relay

import "errors"

// Sentinel errors for the relay service, in a flat var block.
var (
	ErrInvalidConfig      = errors.New("relay: invalid config")
	ErrServiceClosed      = errors.New("relay: service closed")
	ErrAlreadyStarted     = errors.New("relay: already started")
	ErrMalformedMessage   = errors.New("relay: malformed message")
	ErrUnexpectedMessage  = errors.New("relay: unexpected message")
	ErrNoOutboundStream   = errors.New("relay: no outbound stream attached")
	ErrNoReservation      = errors.New("relay: no reservation")
	ErrReservationRefused = errors.New("relay: reservation refused")
	ErrPermissionDenied   = errors.New("relay: permission denied")
	ErrConnectionFailed   = errors.New("relay: connection failed")
	ErrHandshakeTimeout   = errors.New("relay: handshake timeout")
)
