package relay

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/relay-hop/internal/logging"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/types"
)

var splicerLog = logging.Logger("relay.splicer")

const splicerBufSize = 32 * 1024

// Splicer is the bidirectional byte pipe between a HOP initiator
// stream and a STOP target stream, bounded by data and duration
// limits, with an explicit data-cap-closes-both-sides rule and
// independent zero-means-unbounded semantics on each axis.
type Splicer struct {
	clock clock.Clock
}

// NewSplicer builds a Splicer. clk may be nil, defaulting to the real
// wall clock.
func NewSplicer(clk clock.Clock) *Splicer {
	if clk == nil {
		clk = clock.New()
	}
	return &Splicer{clock: clk}
}

// sharedBudget tracks bytes transferred across both directions under
// a single lock, so the data cap is enforced exactly once rather than
// raced between the two forwarding goroutines.
type sharedBudget struct {
	mu        sync.Mutex
	total     uint64
	limit     uint64 // 0 = unbounded
	exhausted bool
}

// reserve returns the number of additional bytes this chunk may
// forward and whether the budget is now exhausted.
func (b *sharedBudget) reserve(want int) (allowed int, exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit == 0 {
		b.total += uint64(want)
		return want, false
	}
	remaining := b.limit - b.total
	if remaining == 0 {
		b.exhausted = true
		return 0, true
	}
	allowed = want
	if uint64(allowed) > remaining {
		allowed = int(remaining)
	}
	b.total += uint64(allowed)
	if b.total >= b.limit {
		b.exhausted = true
	}
	return allowed, b.exhausted
}

// Splice runs the bidirectional copy until both directions have
// reached EOF, the data cap closes both sides, or the duration timer
// fires. It returns the total bytes forwarded across both directions.
func (sp *Splicer) Splice(a, b interfaces.Stream, limit types.Limit) int64 {
	budget := &sharedBudget{limit: limit.Data}

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = a.Close()
			_ = b.Close()
		})
	}

	var timer *clock.Timer
	if limit.Duration > 0 {
		timer = sp.clock.Timer(time.Duration(limit.Duration) * time.Second)
		go func() {
			<-timer.C
			splicerLog.Debug("duration limit reached, closing circuit")
			closeBoth()
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); forward(a, b, budget, closeBoth) }()
	go func() { defer wg.Done(); forward(b, a, budget, closeBoth) }()
	wg.Wait()

	if timer != nil {
		timer.Stop()
	}

	budget.mu.Lock()
	total := int64(budget.total)
	budget.mu.Unlock()
	return total
}

// forward copies src into dst until EOF, error, or the shared budget
// is exhausted. On the source side ending, dst's write half is closed
// so the other peer observes EOF on this direction while the opposite
// direction keeps draining independently.
func forward(src, dst interfaces.Stream, budget *sharedBudget, closeBoth func()) {
	defer func() { _ = dst.CloseWrite() }()

	buf := make([]byte, splicerBufSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			allowed, exhausted := budget.reserve(n)
			if allowed > 0 {
				if _, werr := dst.Write(buf[:allowed]); werr != nil {
					return
				}
			}
			if exhausted {
				closeBoth()
				return
			}
		}
		if rerr != nil {
			return
		}
	}
}
