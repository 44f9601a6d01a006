package relay

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/types"
)

var serviceLog = logging.Logger("relay.service")

// expirySweepInterval is the background store-cleanup cadence.
const expirySweepInterval = time.Second

// Stats is a point-in-time load snapshot.
type Stats struct {
	NumReservations     int
	MaxReservations     int
	ActiveCircuits      int64
	BytesRelayed        uint64
	ConnectionsAccepted uint64
	ConnectionsRejected uint64
}

// ReservationInfo is the externally visible view of one reservation.
type ReservationInfo struct {
	Peer   types.PeerID
	Expire time.Time
	Limit  types.Limit
}

// HostDeps bundles the external collaborators this module treats as
// narrow interfaces: the protocol registrar, the
// connection manager/transport, the relay's own address book, the
// peer store, and an optional authorization gater. Gater may be the
// zero value, which permits everything.
type HostDeps struct {
	Registrar interfaces.Registrar
	Conns     interfaces.ConnectionManager
	Addrs     interfaces.AddressManager
	Peers     interfaces.PeerStore
	Gater     interfaces.Gater
}

// Service is the Circuit Relay v2 HOP service: it registers a stream
// handler for ProtocolHop and serves RESERVE/CONNECT requests against
// a bounded reservation store.
type Service struct {
	self  types.PeerID
	opts  Options
	deps  HostDeps
	store *ReservationStore
	h     *handler

	running int32
	closed  int32
}

// New builds a Service bound to self's identity and deps, applying any
// Option overrides on top of DefaultOptions. It returns ErrInvalidConfig
// if the resulting configuration fails Validate.
func New(self types.PeerID, deps HostDeps, opts ...Option) (*Service, error) {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	store := NewReservationStore(o.MaxReservations, o.ReservationTTL, clock.New())

	svc := &Service{
		self:  self,
		opts:  o,
		deps:  deps,
		store: store,
	}
	svc.h = &handler{
		self:    self,
		store:   store,
		gater:   deps.Gater,
		addrs:   deps.Addrs,
		peers:   deps.Peers,
		conns:   deps.Conns,
		splicer: NewSplicer(nil),
		opts:    o,
	}
	return svc, nil
}

// Start registers the HOP protocol handler and begins the reservation
// store's background expiry sweep. Start returns ErrAlreadyStarted if
// called more than once, and ErrServiceClosed if called after Stop.
func (s *Service) Start() error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrAlreadyStarted
	}
	s.store.StartExpirySweep(expirySweepInterval)
	s.deps.Registrar.Handle(ProtocolHop, s.h.handleStream)
	serviceLog.Info("relay service started",
		"max_reservations", s.opts.MaxReservations,
		"reservation_ttl", s.opts.ReservationTTL)
	return nil
}

// Stop idempotently tears the service down: the protocol handler is
// unregistered and the reservation store's expiry sweep is cancelled.
// In-flight handlers and relayed connections are left to end on their
// own stream errors or caps rather than being forcibly torn down,
// since neither the registrar nor the connection manager exposes a
// way to enumerate them.
func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.deps.Registrar.Unhandle(ProtocolHop)
	s.store.Close()
	serviceLog.Info("relay service stopped")
	return nil
}

// Stats reports the service's current load.
func (s *Service) Stats() Stats {
	return Stats{
		NumReservations:     s.store.Len(),
		MaxReservations:     s.opts.MaxReservations,
		ActiveCircuits:      atomic.LoadInt64(&s.h.activeCircuits),
		BytesRelayed:        atomic.LoadUint64(&s.h.bytesRelayed),
		ConnectionsAccepted: atomic.LoadUint64(&s.h.connectionsAccepted),
		ConnectionsRejected: atomic.LoadUint64(&s.h.connectionsRejected),
	}
}

// Reservations returns a snapshot of all live reservations.
func (s *Service) Reservations() []ReservationInfo {
	all := s.store.All()
	out := make([]ReservationInfo, 0, len(all))
	for _, r := range all {
		out = append(out, ReservationInfo{
			Peer:   r.Peer,
			Expire: r.Expire,
			Limit:  r.Limit,
		})
	}
	return out
}
