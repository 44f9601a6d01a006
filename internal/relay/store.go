package relay

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/types"
)

var storeLog = logging.Logger("relay.store")

// Reservation is a time-bounded entitlement for one peer to be
// reachable through this relay.
type Reservation struct {
	Peer      types.PeerID
	Expire    time.Time
	Addrs     []types.Multiaddr
	Limit     types.Limit
	CreatedAt time.Time
}

// ReserveResult is returned by ReservationStore.Reserve on success.
type ReserveResult struct {
	Refreshed bool
}

// ReservationStore is a bounded, ordered PeerID→Reservation map with
// TTL expiry and refresh-bypasses-cap admission.
type ReservationStore struct {
	mu    sync.Mutex
	clock clock.Clock

	maxReservations int
	ttl             time.Duration

	order []types.PeerID // insertion order, oldest first
	byID  map[types.PeerID]*Reservation

	stopSweep func()
}

// NewReservationStore builds a store with the given capacity and TTL.
// clk may be nil, defaulting to the real wall clock.
func NewReservationStore(maxReservations int, ttl time.Duration, clk clock.Clock) *ReservationStore {
	if clk == nil {
		clk = clock.New()
	}
	s := &ReservationStore{
		clock:           clk,
		maxReservations: maxReservations,
		ttl:             ttl,
		byID:            make(map[types.PeerID]*Reservation),
	}
	return s
}

// StartExpirySweep launches the coarse background timer that drops
// expired entries. Call Close to
// stop it.
func (s *ReservationStore) StartExpirySweep(interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	s.stopSweep = func() { close(stop) }
}

// Close stops the expiry sweep and drains the store.
func (s *ReservationStore) Close() {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	s.mu.Lock()
	s.order = nil
	s.byID = make(map[types.PeerID]*Reservation)
	s.mu.Unlock()
}

func (s *ReservationStore) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []types.PeerID
	for _, id := range s.order {
		r, ok := s.byID[id]
		if !ok {
			continue
		}
		if !now.Before(r.Expire) {
			delete(s.byID, id)
			storeLog.Debug("reservation expired", "peer", id.String())
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Reserve admits or refreshes a reservation for peer, following three
// admission rules:
//  1. an existing entry is refreshed in place regardless of store
//     fullness;
//  2. otherwise a new entry is inserted if size < max;
//  3. otherwise ErrReservationRefused — capacity is never freed by
//     evicting another peer on behalf of a new one.
func (s *ReservationStore) Reserve(peer types.PeerID, addrs []types.Multiaddr, limit types.Limit) (*Reservation, ReserveResult, error) {
	now := s.clock.Now()
	expire := now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[peer]; ok {
		existing.Expire = expire
		existing.Addrs = addrs
		existing.Limit = limit
		return cloneReservation(existing), ReserveResult{Refreshed: true}, nil
	}

	if len(s.byID) >= s.maxReservations {
		return nil, ReserveResult{}, ErrReservationRefused
	}

	r := &Reservation{
		Peer:      peer,
		Expire:    expire,
		Addrs:     addrs,
		Limit:     limit,
		CreatedAt: now,
	}
	s.byID[peer] = r
	s.order = append(s.order, peer)
	return cloneReservation(r), ReserveResult{}, nil
}

// Get returns the reservation for peer, present iff it exists and has
// not expired.
func (s *ReservationStore) Get(peer types.PeerID) (*Reservation, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[peer]
	if !ok || !now.Before(r.Expire) {
		return nil, false
	}
	return cloneReservation(r), true
}

// Remove explicitly drops peer's reservation, if any.
func (s *ReservationStore) Remove(peer types.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[peer]; !ok {
		return
	}
	delete(s.byID, peer)
	for i, id := range s.order {
		if id == peer {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len reports the current number of live entries (including any not
// yet swept past expiry).
func (s *ReservationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// All returns a snapshot of every entry currently held, including any
// not yet swept past expiry.
func (s *ReservationStore) All() []*Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Reservation, 0, len(s.byID))
	for _, id := range s.order {
		if r, ok := s.byID[id]; ok {
			out = append(out, cloneReservation(r))
		}
	}
	return out
}

func cloneReservation(r *Reservation) *Reservation {
	cp := *r
	cp.Addrs = append([]types.Multiaddr(nil), r.Addrs...)
	return &cp
}
