package relay

import "time"

// Protocol codecs this service registers and dials.
const (
	ProtocolHop  = "/libp2p/circuit/relay/0.2.0/hop"
	ProtocolStop = "/libp2p/circuit/relay/0.2.0/stop"
)

// Options configures a Service. Start from DefaultOptions and apply
// the With* functions below (New does this for its Option arguments),
// following the usual functional-options pattern.
type Options struct {
	MaxReservations       int
	ReservationTTL        time.Duration
	DefaultDataLimit      uint64
	DefaultDurationLimit  time.Duration
	HandshakeTimeout      time.Duration
	ApplyConnectionLimits bool
}

// DefaultOptions returns the service's default configuration.
func DefaultOptions() Options {
	return Options{
		MaxReservations:       15,
		ReservationTTL:        2 * time.Hour,
		DefaultDataLimit:      1 << 17,
		DefaultDurationLimit:  120 * time.Second,
		HandshakeTimeout:      30 * time.Second,
		ApplyConnectionLimits: true,
	}
}

// Validate reports a fatal configuration error; the service refuses
// to start on one.
func (o Options) Validate() error {
	if o.MaxReservations <= 0 {
		return ErrInvalidConfig
	}
	if o.ReservationTTL <= 0 {
		return ErrInvalidConfig
	}
	if o.HandshakeTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option mutates an Options value under construction.
type Option func(*Options)

func WithMaxReservations(n int) Option {
	return func(o *Options) { o.MaxReservations = n }
}

func WithReservationTTL(d time.Duration) Option {
	return func(o *Options) { o.ReservationTTL = d }
}

func WithDefaultDataLimit(n uint64) Option {
	return func(o *Options) { o.DefaultDataLimit = n }
}

func WithDefaultDurationLimit(d time.Duration) Option {
	return func(o *Options) { o.DefaultDurationLimit = d }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithConnectionLimits toggles whether the relay advertises its
// configured data/duration caps or {0,0} (unbounded).
func WithConnectionLimits(apply bool) Option {
	return func(o *Options) { o.ApplyConnectionLimits = apply }
}

// effectiveLimit returns the configured default limit, or the
// unbounded limit when ApplyConnectionLimits is false.
func (o Options) effectiveLimit() (dataLimit uint64, durationLimit time.Duration) {
	if !o.ApplyConnectionLimits {
		return 0, 0
	}
	return o.DefaultDataLimit, o.DefaultDurationLimit
}
