package relay

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/types"
)

// pipeStream is a Stream backed by a pair of io.Pipes, one per
// direction, so CloseWrite can half-close independently of the read
// side — something net.Pipe does not support. SetReadDeadline arms a
// timer that force-closes the read side with os.ErrDeadlineExceeded,
// the same way a real net.Conn interrupts a blocked Read.
type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu            sync.Mutex
	deadlineTimer *time.Timer
}

// newPipePair returns two ends of a duplex in-memory stream, wired so
// that writes on one side arrive as reads on the other.
func newPipePair() (*pipeStream, *pipeStream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	a := &pipeStream{r: r1, w: w2}
	b := &pipeStream{r: r2, w: w1}
	return a, b
}

func (p *pipeStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeStream) Close() error {
	_ = p.w.Close()
	_ = p.r.Close()
	return nil
}

func (p *pipeStream) CloseWrite() error { return p.w.Close() }
func (p *pipeStream) Reset() error      { return p.Close() }

func (p *pipeStream) SetDeadline(t time.Time) error      { return p.SetReadDeadline(t) }
func (p *pipeStream) SetWriteDeadline(t time.Time) error { return nil }

// SetReadDeadline arms or cancels a timer that force-closes the read
// side with os.ErrDeadlineExceeded once it elapses, interrupting any
// Read blocked on this pipe — a zero time cancels the pending timer.
func (p *pipeStream) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	if p.deadlineTimer != nil {
		p.deadlineTimer.Stop()
		p.deadlineTimer = nil
	}
	p.mu.Unlock()
	if t.IsZero() {
		return nil
	}
	d := time.Until(t)
	if d <= 0 {
		_ = p.r.CloseWithError(os.ErrDeadlineExceeded)
		return nil
	}
	p.mu.Lock()
	p.deadlineTimer = time.AfterFunc(d, func() { _ = p.r.CloseWithError(os.ErrDeadlineExceeded) })
	p.mu.Unlock()
	return nil
}

// mockConnection is a Connection whose NewStream is supplied by the
// test.
type mockConnection struct {
	remote    types.PeerID
	newStream func(ctx context.Context, protocolID string) (interfaces.Stream, error)
}

func (c *mockConnection) RemotePeer() types.PeerID { return c.remote }

func (c *mockConnection) NewStream(ctx context.Context, protocolID string) (interfaces.Stream, error) {
	return c.newStream(ctx, protocolID)
}

func (c *mockConnection) Close() error { return nil }

// mockConnManager is a ConnectionManager whose Open is supplied by the
// test.
type mockConnManager struct {
	open func(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) (interfaces.Connection, error)
}

func (m *mockConnManager) Open(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) (interfaces.Connection, error) {
	return m.open(ctx, p, addrs)
}

// mockAddrs is a fixed AddressManager.
type mockAddrs struct{ addrs []types.Multiaddr }

func (m *mockAddrs) Addresses() []types.Multiaddr { return m.addrs }

// mergeCall records one PeerStore.Merge invocation.
type mergeCall struct {
	peer types.PeerID
	tags interfaces.Tags
}

// mockPeerStore records every Merge call it receives.
type mockPeerStore struct {
	mu     sync.Mutex
	merges []mergeCall
}

func (m *mockPeerStore) Merge(p types.PeerID, tags interfaces.Tags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, mergeCall{peer: p, tags: tags})
	return nil
}

func (m *mockPeerStore) calls() []mergeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mergeCall(nil), m.merges...)
}

// mockRegistrar records Handle/Unhandle calls and lets a test invoke
// the registered handler directly.
type mockRegistrar struct {
	mu       sync.Mutex
	handlers map[string]interfaces.StreamHandler
}

func newMockRegistrar() *mockRegistrar {
	return &mockRegistrar{handlers: make(map[string]interfaces.StreamHandler)}
}

func (r *mockRegistrar) Handle(protocolID string, h interfaces.StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[protocolID] = h
}

func (r *mockRegistrar) Unhandle(protocolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, protocolID)
}

func (r *mockRegistrar) get(protocolID string) (interfaces.StreamHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[protocolID]
	return h, ok
}
