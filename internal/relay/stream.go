package relay

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/relay-hop/pkg/interfaces"
)

// Event names emitted by FramedStream's observer registry.
const (
	EventStreamOutbound = "stream:outbound"
	EventClose          = "close"
)

// Marshaler is satisfied by relaypb.HopMessage and relaypb.StopMessage.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler is satisfied by *relaypb.HopMessage and *relaypb.StopMessage.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// FramedStream wraps a raw duplex byte stream with a push-style
// outbound queue and a pull-style inbound reader, both speaking
// length-prefixed protobuf: an unsigned varint byte
// length followed by that many payload bytes.
//
// Writes fail with ErrNoOutboundStream until a stream is attached.
// Attaching a new stream while one is already attached silently
// replaces it — the previous one is simply abandoned, no close event
// fires for it. The first Attach and the final Detach emit
// EventStreamOutbound and EventClose respectively.
type FramedStream struct {
	mu        sync.Mutex
	s         interfaces.Stream
	r         *bufio.Reader
	attached  bool
	observers []func(event string)
}

// NewFramedStream returns an unattached FramedStream.
func NewFramedStream() *FramedStream {
	return &FramedStream{}
}

// Observe registers fn to be called for every event this stream
// emits. It is meant to be subscribed for the lifetime of one
// request.
func (f *FramedStream) Observe(fn func(event string)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

func (f *FramedStream) emit(event string) {
	f.mu.Lock()
	observers := append([]func(string){}, f.observers...)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(event)
	}
}

// Attach binds s as the stream's current outbound/inbound transport.
func (f *FramedStream) Attach(s interfaces.Stream) {
	f.mu.Lock()
	first := !f.attached
	f.s = s
	f.r = bufio.NewReader(s)
	f.attached = true
	f.mu.Unlock()
	if first {
		f.emit(EventStreamOutbound)
	}
}

// Detach releases the current stream. If one was attached, EventClose
// fires and the underlying stream's write half is closed.
func (f *FramedStream) Detach() {
	f.mu.Lock()
	s := f.s
	wasAttached := f.attached
	f.s = nil
	f.r = nil
	f.attached = false
	f.mu.Unlock()
	if s != nil {
		_ = s.CloseWrite()
	}
	if wasAttached {
		f.emit(EventClose)
	}
}

// WriteMsg encodes and writes one message to the attached outbound
// stream. Nothing is buffered: each call issues its own length-prefixed
// write directly against the stream.
func (f *FramedStream) WriteMsg(m Marshaler) error {
	f.mu.Lock()
	s := f.s
	f.mu.Unlock()
	if s == nil {
		return ErrNoOutboundStream
	}
	body, err := m.Marshal()
	if err != nil {
		return err
	}
	prefix := varint.ToUvarint(uint64(len(body)))
	if _, err := s.Write(prefix); err != nil {
		return err
	}
	if _, err := s.Write(body); err != nil {
		return err
	}
	return nil
}

// ReadMsg blocks until one length-prefixed message arrives and
// decodes it into out, or until abort fires. On abort the read
// completes normally: it returns ok=false, err=nil. Any genuine I/O or
// decode error is returned as err.
func (f *FramedStream) ReadMsg(abort <-chan struct{}, out Unmarshaler) (ok bool, err error) {
	f.mu.Lock()
	s, r := f.s, f.r
	f.mu.Unlock()
	if s == nil || r == nil {
		return false, ErrNoOutboundStream
	}

	aborted := make(chan struct{})
	readDone := make(chan struct{})
	go func() {
		select {
		case <-abort:
			close(aborted)
			_ = s.SetReadDeadline(time.Unix(0, 1))
		case <-readDone:
		}
	}()
	defer close(readDone)

	length, rerr := varint.ReadUvarint(r)
	if rerr != nil {
		select {
		case <-aborted:
			return false, nil
		default:
			return false, rerr
		}
	}
	buf := make([]byte, length)
	if _, rerr := io.ReadFull(r, buf); rerr != nil {
		select {
		case <-aborted:
			return false, nil
		default:
			return false, rerr
		}
	}
	if err := out.Unmarshal(buf); err != nil {
		return false, err
	}
	return true, nil
}

// ReadMsgCtx is a convenience wrapper for callers that carry a
// context rather than a bare abort channel.
func (f *FramedStream) ReadMsgCtx(ctx context.Context, out Unmarshaler) (bool, error) {
	return f.ReadMsg(ctx.Done(), out)
}
