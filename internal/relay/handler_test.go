package relay

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/proto/relaypb"
	"github.com/dep2p/relay-hop/pkg/types"
)

func newTestHandler(t *testing.T, mutate func(*handler)) (*handler, *ReservationStore, *mockPeerStore) {
	t.Helper()
	clk := clock.NewMock()
	store := NewReservationStore(15, 2*time.Hour, clk)
	peers := &mockPeerStore{}
	h := &handler{
		self:    peerN(0),
		store:   store,
		gater:   interfaces.Gater{},
		addrs:   &mockAddrs{addrs: []types.Multiaddr{types.ParseMultiaddr("/ip4/1.2.3.4/tcp/4001")}},
		peers:   peers,
		splicer: NewSplicer(nil),
		opts:    DefaultOptions(),
	}
	if mutate != nil {
		mutate(h)
	}
	return h, store, peers
}

// roundtrip drives one HOP request against h over an in-memory pipe
// and returns the decoded STATUS reply. It is only suitable for
// scenarios that do not transition into Relaying, since it waits for
// handleStream to return.
func roundtrip(t *testing.T, h *handler, remote types.PeerID, req *relaypb.HopMessage) *relaypb.HopMessage {
	t.Helper()
	client, server := newPipePair()

	done := make(chan struct{})
	go func() {
		h.handleStream(server, remote)
		close(done)
	}()

	fs := NewFramedStream()
	fs.Attach(client)
	require.NoError(t, fs.WriteMsg(req))

	var resp relaypb.HopMessage
	ok, err := fs.ReadMsgCtx(context.Background(), &resp)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}
	return &resp
}

func TestHopHandler_HappyReserve(t *testing.T) {
	h, store, peers := newTestHandler(t, nil)
	client := peerN(1)

	resp := roundtrip(t, h, client, &relaypb.HopMessage{Type: relaypb.HopMessageReserve})

	require.True(t, resp.HasStatus)
	assert.Equal(t, relaypb.StatusOK, resp.Status)
	require.NotNil(t, resp.Reservation)
	require.Len(t, resp.Reservation.Addrs, 1)
	require.NotNil(t, resp.Limit)
	assert.Equal(t, uint32(120), resp.Limit.Duration)
	assert.Equal(t, uint64(1<<17), resp.Limit.Data)

	_, ok := store.Get(client)
	assert.True(t, ok)

	calls := peers.calls()
	require.Len(t, calls, 1, "the peer store must receive exactly one tag merge")
	assert.Equal(t, client, calls[0].peer)
	assert.Equal(t, relaySourceTag, calls[0].tags.Name)
	assert.Equal(t, int64(7_200_000), calls[0].tags.TTLMs)
}

func TestHopHandler_GaterDeniesReservation(t *testing.T) {
	h, store, _ := newTestHandler(t, func(h *handler) {
		h.gater = interfaces.Gater{DenyInboundRelayReservation: func(types.PeerID) bool { return true }}
	})
	client := peerN(1)

	resp := roundtrip(t, h, client, &relaypb.HopMessage{Type: relaypb.HopMessageReserve})
	assert.Equal(t, relaypb.StatusPermissionDenied, resp.Status)

	_, ok := store.Get(client)
	assert.False(t, ok)
}

func TestHopHandler_CapacityExceededThenRefreshWins(t *testing.T) {
	h, store, _ := newTestHandler(t, nil)
	limit := types.Limit{Data: 1 << 17, Duration: 120}
	for i := 0; i < 15; i++ {
		_, _, err := store.Reserve(peerN(i), nil, limit)
		require.NoError(t, err)
	}

	resp := roundtrip(t, h, peerN(100), &relaypb.HopMessage{Type: relaypb.HopMessageReserve})
	assert.Equal(t, relaypb.StatusReservationRefused, resp.Status)
	assert.Equal(t, 15, store.Len())

	resp = roundtrip(t, h, peerN(0), &relaypb.HopMessage{Type: relaypb.HopMessageReserve})
	assert.Equal(t, relaypb.StatusOK, resp.Status)
	assert.Equal(t, 15, store.Len(), "a same-peer refresh must not grow the store")
}

func TestHopHandler_UnexpectedFirstMessage(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	resp := roundtrip(t, h, peerN(1), &relaypb.HopMessage{
		Type: relaypb.HopMessageStatus, Status: relaypb.StatusOK, HasStatus: true,
	})
	assert.Equal(t, relaypb.StatusUnexpectedMessage, resp.Status)
}

func TestHopHandler_ConnectNoTargetReservation(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	target := peerN(2)

	resp := roundtrip(t, h, peerN(1), &relaypb.HopMessage{
		Type: relaypb.HopMessageConnect,
		Peer: &relaypb.Peer{ID: target.Bytes()},
	})
	assert.Equal(t, relaypb.StatusNoReservation, resp.Status)
}

func TestHopHandler_SelfConnectRejected(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	resp := roundtrip(t, h, peerN(1), &relaypb.HopMessage{
		Type: relaypb.HopMessageConnect,
		Peer: &relaypb.Peer{ID: h.self.Bytes()},
	})
	assert.Equal(t, relaypb.StatusNoReservation, resp.Status)
}

func TestHopHandler_MalformedConnect(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	resp := roundtrip(t, h, peerN(1), &relaypb.HopMessage{
		Type: relaypb.HopMessageConnect,
		Peer: &relaypb.Peer{},
	})
	assert.Equal(t, relaypb.StatusMalformedMessage, resp.Status)
	assert.EqualValues(t, 1, h.connectionsRejected)
	assert.EqualValues(t, 0, h.connectionsAccepted)
}

func TestHopHandler_ConnectDeniedByGater(t *testing.T) {
	h, store, _ := newTestHandler(t, func(h *handler) {
		h.gater = interfaces.Gater{DenyOutboundRelayedConnection: func(source, target types.PeerID) bool { return true }}
	})
	target := peerN(2)
	_, _, err := store.Reserve(target, nil, types.Limit{Data: 1 << 17, Duration: 120})
	require.NoError(t, err)

	resp := roundtrip(t, h, peerN(1), &relaypb.HopMessage{
		Type: relaypb.HopMessageConnect,
		Peer: &relaypb.Peer{ID: target.Bytes()},
	})
	assert.Equal(t, relaypb.StatusPermissionDenied, resp.Status)
}

func TestHopHandler_RelayedConnect(t *testing.T) {
	h, store, _ := newTestHandler(t, nil)
	target := peerN(2)
	limit := types.Limit{Data: 1 << 17, Duration: 120}
	_, _, err := store.Reserve(target, nil, limit)
	require.NoError(t, err)

	hint := types.ParseMultiaddr("/ip4/9.9.9.9/tcp/5001")

	stopClientSide, stopServerSide := newPipePair()
	var gotDialAddrs []types.Multiaddr
	h.conns = &mockConnManager{
		open: func(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) (interfaces.Connection, error) {
			assert.Equal(t, target, p)
			gotDialAddrs = addrs
			return &mockConnection{
				remote: p,
				newStream: func(ctx context.Context, protocolID string) (interfaces.Stream, error) {
					assert.Equal(t, ProtocolStop, protocolID)
					return stopClientSide, nil
				},
			}, nil
		},
	}

	var gotStopConnect relaypb.StopMessage
	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		fs := NewFramedStream()
		fs.Attach(stopServerSide)
		ok, err := fs.ReadMsgCtx(context.Background(), &gotStopConnect)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, fs.WriteMsg(&relaypb.StopMessage{
			Type: relaypb.StopMessageStatus, Status: relaypb.StatusOK, HasStatus: true,
		}))
	}()

	source := peerN(1)
	client, server := newPipePair()
	done := make(chan struct{})
	go func() {
		h.handleStream(server, source)
		close(done)
	}()

	fs := NewFramedStream()
	fs.Attach(client)
	require.NoError(t, fs.WriteMsg(&relaypb.HopMessage{
		Type: relaypb.HopMessageConnect,
		Peer: &relaypb.Peer{ID: target.Bytes(), Addrs: [][]byte{hint.Bytes()}},
	}))

	var resp relaypb.HopMessage
	ok, err := fs.ReadMsgCtx(context.Background(), &resp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, relaypb.StatusOK, resp.Status)

	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("stop responder did not finish")
	}
	assert.Equal(t, source.Bytes(), gotStopConnect.Peer.ID)

	require.Len(t, gotDialAddrs, 1, "the dialer must receive the CONNECT message's own address hints")
	assert.True(t, hint.Equal(gotDialAddrs[0]), "dial addrs must come from the CONNECT request, not the stored reservation")

	// End the relaying phase; the handler's goroutine returns once the
	// splicer observes EOF on both directions.
	_ = client.CloseWrite()
	_ = stopServerSide.CloseWrite()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not finish relaying")
	}

	assert.EqualValues(t, 1, h.connectionsAccepted)
	assert.EqualValues(t, 0, h.connectionsRejected)
	assert.EqualValues(t, 0, h.activeCircuits, "the circuit count must drop back to zero once splicing ends")
}
