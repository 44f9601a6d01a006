// Command relay-server runs a standalone Circuit Relay v2 HOP service.
//
// It wires relay.Service against a minimal in-memory stand-in for the
// networking stack (registrar, connection manager, address book, peer
// store). A real deployment replaces demoHost with its own
// transport/endpoint bindings; this binary exists to exercise the
// service's lifecycle and print its stats, not to relay real traffic
// end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/relay-hop/internal/relay"
	"github.com/dep2p/relay-hop/pkg/interfaces"
	"github.com/dep2p/relay-hop/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	maxReservations := flag.Int("max-reservations", 128, "maximum concurrent reservations")
	reservationTTL := flag.Duration("reservation-ttl", 2*time.Hour, "reservation lifetime")
	dataLimit := flag.Uint64("data-limit", 1<<17, "per-circuit data cap in bytes, 0 for unbounded")
	durationLimit := flag.Duration("duration-limit", 120*time.Second, "per-circuit duration cap, 0 for unbounded")
	listenAddr := flag.String("addr", "/ip4/0.0.0.0/tcp/4001", "advertised relay address")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	self := types.PeerIDFromBytes([]byte("relay-server-demo"))
	host := newDemoHost([]types.Multiaddr{types.ParseMultiaddr(*listenAddr)})

	svc, err := relay.New(self, relay.HostDeps{
		Registrar: host,
		Conns:     host,
		Addrs:     host,
		Peers:     host,
	},
		relay.WithMaxReservations(*maxReservations),
		relay.WithReservationTTL(*reservationTTL),
		relay.WithDefaultDataLimit(*dataLimit),
		relay.WithDefaultDurationLimit(*durationLimit),
	)
	if err != nil {
		return fmt.Errorf("configure relay service: %w", err)
	}

	if err := svc.Start(); err != nil {
		return fmt.Errorf("start relay service: %w", err)
	}
	defer func() { _ = svc.Stop() }()

	fmt.Printf("relay service started: peer=%s addr=%s\n", self.String(), *listenAddr)
	fmt.Println("press ctrl+c to stop")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := svc.Stats()
			fmt.Printf("[stats] reservations=%d/%d circuits=%d relayed_bytes=%d accepted=%d rejected=%d\n",
				stats.NumReservations, stats.MaxReservations, stats.ActiveCircuits,
				stats.BytesRelayed, stats.ConnectionsAccepted, stats.ConnectionsRejected)
		}
	}
}

// demoHost is a minimal in-memory implementation of the registrar,
// connection manager, address book, and peer store interfaces the
// relay service depends on. It accepts no real inbound streams and
// refuses every dial: it exists so the service has something to
// start against in a standalone binary, not to move bytes.
type demoHost struct {
	addrs []types.Multiaddr
}

func newDemoHost(addrs []types.Multiaddr) *demoHost {
	return &demoHost{addrs: addrs}
}

func (h *demoHost) Handle(protocolID string, fn interfaces.StreamHandler) {}
func (h *demoHost) Unhandle(protocolID string)                            {}
func (h *demoHost) Addresses() []types.Multiaddr                          { return h.addrs }
func (h *demoHost) Merge(p types.PeerID, tags interfaces.Tags) error       { return nil }

func (h *demoHost) Open(ctx context.Context, p types.PeerID, addrs []types.Multiaddr) (interfaces.Connection, error) {
	return nil, fmt.Errorf("demo host: no transport configured, cannot dial %s", p.String())
}
