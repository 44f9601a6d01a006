package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/proto/relaypb"
	"github.com/dep2p/relay-hop/pkg/types"
)

var handlerLog = logging.Logger("relay.handler")

// handler drives one inbound HOP stream through AwaitRequest →
// {HandleReserve | HandleConnect | Reject} → Done | Relaying.
type handler struct {
	self    types.PeerID
	store   *ReservationStore
	gater   interfaces.Gater
	addrs   interfaces.AddressManager
	peers   interfaces.PeerStore
	conns   interfaces.ConnectionManager
	splicer *Splicer
	opts    Options

	// Observability counters read by Service.Stats; all updated with
	// sync/atomic since handleConnect runs concurrently across streams.
	activeCircuits      int64
	bytesRelayed        uint64
	connectionsAccepted uint64
	connectionsRejected uint64
}

// handleStream satisfies interfaces.StreamHandler and is what gets
// registered for ProtocolHop.
func (h *handler) handleStream(s interfaces.Stream, remote types.PeerID) {
	circuitID := uuid.New().String()[:8]
	log := handlerLog.With("circuit", circuitID, "peer", remote.String())

	fs := NewFramedStream()
	fs.Attach(s)

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.HandshakeTimeout)
	defer cancel()

	var req relaypb.HopMessage
	ok, err := fs.ReadMsgCtx(ctx, &req)
	if err != nil {
		log.Debug("malformed hop request", "err", err)
		h.reply(fs, relaypb.StatusMalformedMessage, nil, nil)
		_ = s.Close()
		return
	}
	if !ok {
		// Aborted or timed out waiting for the request: nothing was
		// read, so there is nothing to reply to.
		_ = s.Close()
		return
	}

	switch req.Type {
	case relaypb.HopMessageReserve:
		h.handleReserve(log, fs, s, remote)
	case relaypb.HopMessageConnect:
		h.handleConnect(log, fs, s, remote, &req)
	default:
		log.Debug("unexpected hop message", "type", req.Type)
		h.reply(fs, relaypb.StatusUnexpectedMessage, nil, nil)
		_ = s.Close()
	}
}

func (h *handler) handleReserve(log *slog.Logger, fs *FramedStream, s interfaces.Stream, remote types.PeerID) {
	if h.gater.DenyReservation(remote) {
		log.Debug("reservation denied by gater")
		h.reply(fs, relaypb.StatusPermissionDenied, nil, nil)
		_ = s.Close()
		return
	}

	dataLimit, durationLimit := h.opts.effectiveLimit()
	limit := types.Limit{Data: dataLimit, Duration: uint32(durationLimit / time.Second)}

	res, _, err := h.store.Reserve(remote, nil, limit)
	if err != nil {
		log.Debug("reservation refused", "err", err)
		h.reply(fs, relaypb.StatusReservationRefused, nil, nil)
		_ = s.Close()
		return
	}

	var addrBytes [][]byte
	for _, a := range h.addrs.Addresses() {
		addrBytes = append(addrBytes, types.AppendCircuit(a, remote).Bytes())
	}

	tagPeer(h.peers, remote, int64(h.opts.ReservationTTL/time.Millisecond))

	reservation := &relaypb.Reservation{
		Expire: uint64(res.Expire.Unix()),
		Addrs:  addrBytes,
	}
	wireLimit := &relaypb.Limit{Duration: limit.Duration, Data: limit.Data}
	h.reply(fs, relaypb.StatusOK, reservation, wireLimit)
	_ = s.Close()
}

func (h *handler) handleConnect(log *slog.Logger, fs *FramedStream, s interfaces.Stream, remote types.PeerID, req *relaypb.HopMessage) {
	if req.Peer == nil || len(req.Peer.ID) == 0 {
		log.Debug("malformed connect: no target peer")
		h.reply(fs, relaypb.StatusMalformedMessage, nil, nil)
		atomic.AddUint64(&h.connectionsRejected, 1)
		_ = s.Close()
		return
	}

	target := types.PeerIDFromBytes(req.Peer.ID)
	if target == h.self {
		log.Debug("connect to self rejected")
		h.reply(fs, relaypb.StatusNoReservation, nil, nil)
		atomic.AddUint64(&h.connectionsRejected, 1)
		_ = s.Close()
		return
	}

	res, found := h.store.Get(target)
	if !found {
		log.Debug("connect target has no reservation", "target", target.String())
		h.reply(fs, relaypb.StatusNoReservation, nil, nil)
		atomic.AddUint64(&h.connectionsRejected, 1)
		_ = s.Close()
		return
	}

	if h.gater.DenyOutboundConnect(remote, target) {
		log.Debug("outbound connect denied by gater", "target", target.String())
		h.reply(fs, relaypb.StatusPermissionDenied, nil, nil)
		atomic.AddUint64(&h.connectionsRejected, 1)
		_ = s.Close()
		return
	}

	dialAddrs := decodeMultiaddrs(log, req.Peer.Addrs)
	targetStream, err := dialStop(context.Background(), h.conns, remote, target, dialAddrs, res.Limit, h.opts.HandshakeTimeout)
	if err != nil {
		log.Debug("stop dial failed", "target", target.String(), "err", err)
		h.reply(fs, relaypb.StatusConnectionFailed, nil, nil)
		atomic.AddUint64(&h.connectionsRejected, 1)
		_ = s.Close()
		return
	}

	ceilData, ceilDuration := h.opts.effectiveLimit()
	ceiling := types.Limit{Data: ceilData, Duration: uint32(ceilDuration / time.Second)}
	effective := minLimit(res.Limit, ceiling)

	wireLimit := &relaypb.Limit{Duration: effective.Duration, Data: effective.Data}
	h.reply(fs, relaypb.StatusOK, nil, wireLimit)
	atomic.AddUint64(&h.connectionsAccepted, 1)

	log.Debug("relaying", "target", target.String())
	atomic.AddInt64(&h.activeCircuits, 1)
	total := h.splicer.Splice(s, targetStream, effective)
	atomic.AddInt64(&h.activeCircuits, -1)
	atomic.AddUint64(&h.bytesRelayed, uint64(total))
}

// decodeMultiaddrs parses the CONNECT message's address hints, the
// dial targets the STOP handshake actually uses, dropping any entry
// that fails to decode rather than failing the whole CONNECT.
func decodeMultiaddrs(log *slog.Logger, raw [][]byte) []types.Multiaddr {
	if len(raw) == 0 {
		return nil
	}
	out := make([]types.Multiaddr, 0, len(raw))
	for _, b := range raw {
		a, err := types.NewMultiaddrBytes(b)
		if err != nil {
			log.Debug("dropping unparsable connect address hint", "err", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// reply writes exactly one STATUS HopMessage.
func (h *handler) reply(fs *FramedStream, status relaypb.Status, reservation *relaypb.Reservation, limit *relaypb.Limit) {
	msg := &relaypb.HopMessage{
		Type:        relaypb.HopMessageStatus,
		Status:      status,
		HasStatus:   true,
		Reservation: reservation,
		Limit:       limit,
	}
	if err := fs.WriteMsg(msg); err != nil {
		handlerLog.Debug("hop reply write failed", "err", err)
	}
}

// minLimit combines two limits, treating zero as unbounded on each
// axis independently.
func minLimit(a, b types.Limit) types.Limit {
	return types.Limit{
		Data:     minNonZeroU64(a.Data, b.Data),
		Duration: minNonZeroU32(a.Duration, b.Duration),
	}
}

func minNonZeroU64(a, b uint64) uint64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func minNonZeroU32(a, b uint32) uint32 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}
