package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/proto/relaypb"
	"github.com/dep2p/relay-hop/pkg/types"
)

var stopLog = logging.Logger("relay.stop")

// dialStop opens a STOP stream to target on behalf of source and runs
// the CONNECT/STATUS handshake. Every failure mode (dial, stream
// open, write, read, non-OK status, timeout) collapses to
// ErrConnectionFailed; the underlying cause is logged but not
// returned to the caller, except that a handshake cut off by the
// timeout also wraps ErrHandshakeTimeout.
func dialStop(ctx context.Context, connMgr interfaces.ConnectionManager, source, target types.PeerID, addrs []types.Multiaddr, limit types.Limit, handshakeTimeout time.Duration) (interfaces.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, err := connMgr.Open(ctx, target, addrs)
	if err != nil {
		stopLog.Warn("stop dial failed", "target", target.String(), "err", err)
		return nil, ErrConnectionFailed
	}

	s, err := conn.NewStream(ctx, ProtocolStop)
	if err != nil {
		stopLog.Warn("stop stream open failed", "target", target.String(), "err", err)
		return nil, ErrConnectionFailed
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	fs := NewFramedStream()
	fs.Attach(s)

	req := &relaypb.StopMessage{
		Type: relaypb.StopMessageConnect,
		Peer: &relaypb.Peer{
			ID: source.Bytes(),
		},
		Limit: &relaypb.Limit{
			Duration: limit.Duration,
			Data:     limit.Data,
		},
	}
	if err := fs.WriteMsg(req); err != nil {
		stopLog.Warn("stop write failed", "target", target.String(), "err", err)
		_ = s.Reset()
		return nil, ErrConnectionFailed
	}

	var resp relaypb.StopMessage
	ok, err := fs.ReadMsgCtx(ctx, &resp)
	if err != nil || !ok {
		_ = s.Reset()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			stopLog.Warn("stop handshake timed out", "target", target.String())
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ErrHandshakeTimeout)
		}
		stopLog.Warn("stop read failed", "target", target.String(), "err", err)
		return nil, ErrConnectionFailed
	}
	if !resp.HasStatus || resp.Status != relaypb.StatusOK {
		stopLog.Warn("stop rejected", "target", target.String(), "status", resp.Status.String())
		_ = s.Reset()
		return nil, ErrConnectionFailed
	}

	_ = s.SetDeadline(time.Time{})
	return s, nil
}
