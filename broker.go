package zframe

import (
	"context"
	"errors"
	"sync"
)

// Broker relays whole units between a ROUTER (clients) and a DEALER
// (workers) in a background goroutine. Units are forwarded unmodified in
// both directions.
type Broker struct {
	cfg    relayConfig
	router *Router
	dealer *Dealer

	mu        sync.Mutex
	worker    *relayWorker
	endpoints RelayEndpoints
}

// NewBroker creates a broker with an unbound ROUTER and DEALER.
func NewBroker(opts ...RelayOption) *Broker {
	cfg := newRelayConfig(RelayKindBroker, opts)
	return &Broker{
		cfg:       cfg,
		router:    NewRouter(cfg.socketOpts...),
		dealer:    NewDealer(cfg.socketOpts...),
		endpoints: RelayEndpoints{Kind: RelayKindBroker},
	}
}

// Setup binds the router to routerAddress and the dealer to dealerAddress,
// then starts relaying. On a bind failure no worker is started and nothing
// stays bound. After Shutdown, Setup rebinds and starts a new worker.
func (b *Broker) Setup(routerAddress, dealerAddress string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.worker != nil {
		if !b.worker.stopped() {
			return &RelayError{Relay: b.cfg.name, Op: "setup", Err: ErrAlreadyRunning}
		}
		if err := b.router.Unbind(b.endpoints.Frontend); err != nil {
			return &RelayError{Relay: b.cfg.name, Op: "unbind router", Err: err}
		}
		if err := b.dealer.Unbind(b.endpoints.Backend); err != nil {
			return &RelayError{Relay: b.cfg.name, Op: "unbind dealer", Err: err}
		}
		b.worker = nil
		b.endpoints.Frontend, b.endpoints.Backend = "", ""
	}

	if err := b.router.Bind(routerAddress); err != nil {
		return &RelayError{Relay: b.cfg.name, Op: "bind router", Err: err}
	}
	if err := b.dealer.Bind(dealerAddress); err != nil {
		if uerr := b.router.Unbind(routerAddress); uerr != nil {
			logger := b.cfg.log()
			logger.Warn().Err(uerr).Str("router", routerAddress).Msg("router left bound after failed setup")
		}
		return &RelayError{Relay: b.cfg.name, Op: "bind dealer", Err: err}
	}
	b.endpoints.Frontend = routerAddress
	b.endpoints.Backend = dealerAddress

	b.worker = newRelayWorker(b.cfg.log(), b.cfg.pollInterval)
	b.worker.start(b.step, b.cfg.metrics)

	logger := b.cfg.log()
	logger.Info().
		Str("router", routerAddress).
		Str("dealer", dealerAddress).
		Msg("broker started")
	return nil
}

func (b *Broker) step(running func() bool) int {
	n := relayUnits(b.worker.log, b.router, b.dealer, DirectionFrontendToBackend, b.cfg.metrics, running)
	n += relayUnits(b.worker.log, b.dealer, b.router, DirectionBackendToFrontend, b.cfg.metrics, running)
	return n
}

// Name returns the broker name.
func (b *Broker) Name() string { return b.cfg.name }

// Router returns the client-facing socket.
func (b *Broker) Router() *Router { return b.router }

// Dealer returns the worker-facing socket.
func (b *Broker) Dealer() *Dealer { return b.dealer }

// Metrics returns the broker's traffic counters.
func (b *Broker) Metrics() *RelayMetrics { return b.cfg.metrics }

// Endpoints returns the addresses passed to Setup.
func (b *Broker) Endpoints() RelayEndpoints {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endpoints
}

// Running reports whether the relay worker is active.
func (b *Broker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.worker != nil && b.worker.running.Load()
}

// Shutdown stops the relay worker and waits for it until ctx ends. The
// sockets stay open; use Close to release them.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	w := b.worker
	b.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.shutdown(ctx)
}

// Close stops the worker, waiting at most the shutdown timeout, and then
// closes both sockets. If the worker does not stop in time the sockets are
// left open and the returned error wraps ErrShutdownTimeout.
func (b *Broker) Close() error {
	b.mu.Lock()
	w := b.worker
	b.mu.Unlock()

	if w == nil {
		return errors.Join(b.router.Close(), b.dealer.Close())
	}
	err := closeRelay(b.cfg.name, w, b.cfg.shutdownTimeout, b.router.Socket, b.dealer.Socket)
	if err == nil {
		logger := b.cfg.log()
		logger.Info().Msg("broker closed")
	}
	return err
}
