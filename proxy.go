package zframe

import (
	"context"
	"errors"
	"sync"
)

// XPubSubProxy forwards units published to its XSUB side out through its
// XPUB side. Only data flows through the proxy loop. The XSUB side
// subscribes to every topic upstream; the XPUB side filters for its own
// subscribers.
type XPubSubProxy struct {
	cfg relayConfig
	pub *XPublisher
	sub *XSubscriber

	mu        sync.Mutex
	worker    *relayWorker
	endpoints RelayEndpoints
}

// NewXPubSubProxy creates a proxy with an unbound XPUB and XSUB.
func NewXPubSubProxy(opts ...RelayOption) *XPubSubProxy {
	cfg := newRelayConfig(RelayKindProxy, opts)
	return &XPubSubProxy{
		cfg:       cfg,
		pub:       NewXPublisher(cfg.socketOpts...),
		sub:       NewXSubscriber(cfg.socketOpts...),
		endpoints: RelayEndpoints{Kind: RelayKindProxy},
	}
}

// Setup binds the XPUB side to pubAddress (subscribers connect here) and
// the XSUB side to subAddress (publishers connect here), then starts
// forwarding. On a bind failure nothing stays bound. After Shutdown, Setup
// rebinds and starts a new worker.
func (p *XPubSubProxy) Setup(pubAddress, subAddress string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.worker != nil {
		if !p.worker.stopped() {
			return &RelayError{Relay: p.cfg.name, Op: "setup", Err: ErrAlreadyRunning}
		}
		if err := p.pub.Unbind(p.endpoints.Backend); err != nil {
			return &RelayError{Relay: p.cfg.name, Op: "unbind xpub", Err: err}
		}
		if err := p.sub.Unbind(p.endpoints.Frontend); err != nil {
			return &RelayError{Relay: p.cfg.name, Op: "unbind xsub", Err: err}
		}
		p.worker = nil
		p.endpoints.Frontend, p.endpoints.Backend = "", ""
	}

	// everything published upstream is pulled in and filtered at the XPUB
	if err := p.sub.raw.SetOption(OptionSubscribe, ""); err != nil {
		return &RelayError{Relay: p.cfg.name, Op: "subscribe", Err: err}
	}
	if err := p.pub.Bind(pubAddress); err != nil {
		return &RelayError{Relay: p.cfg.name, Op: "bind xpub", Err: err}
	}
	if err := p.sub.Bind(subAddress); err != nil {
		if uerr := p.pub.Unbind(pubAddress); uerr != nil {
			logger := p.cfg.log()
			logger.Warn().Err(uerr).Str("xpub", pubAddress).Msg("xpub left bound after failed setup")
		}
		return &RelayError{Relay: p.cfg.name, Op: "bind xsub", Err: err}
	}
	p.endpoints.Frontend = subAddress
	p.endpoints.Backend = pubAddress

	p.worker = newRelayWorker(p.cfg.log(), p.cfg.pollInterval)
	p.worker.start(p.step, p.cfg.metrics)

	logger := p.cfg.log()
	logger.Info().
		Str("xpub", pubAddress).
		Str("xsub", subAddress).
		Msg("proxy started")
	return nil
}

func (p *XPubSubProxy) step(running func() bool) int {
	return relayUnits(p.worker.log, p.sub, p.pub, DirectionFrontendToBackend, p.cfg.metrics, running)
}

// Name returns the proxy name.
func (p *XPubSubProxy) Name() string { return p.cfg.name }

// XPublisher returns the subscriber-facing socket.
func (p *XPubSubProxy) XPublisher() *XPublisher { return p.pub }

// XSubscriber returns the publisher-facing socket.
func (p *XPubSubProxy) XSubscriber() *XSubscriber { return p.sub }

// Metrics returns the proxy's traffic counters.
func (p *XPubSubProxy) Metrics() *RelayMetrics { return p.cfg.metrics }

// Endpoints returns the addresses passed to Setup.
func (p *XPubSubProxy) Endpoints() RelayEndpoints {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints
}

// Running reports whether the forwarding worker is active.
func (p *XPubSubProxy) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.worker != nil && p.worker.running.Load()
}

// Shutdown stops the forwarding worker and waits for it until ctx ends.
func (p *XPubSubProxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	w := p.worker
	p.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.shutdown(ctx)
}

// Close stops the worker within the shutdown timeout and closes both
// sockets. On timeout the sockets are left open.
func (p *XPubSubProxy) Close() error {
	p.mu.Lock()
	w := p.worker
	p.mu.Unlock()

	if w == nil {
		return errors.Join(p.pub.Close(), p.sub.Close())
	}
	err := closeRelay(p.cfg.name, w, p.cfg.shutdownTimeout, p.pub.Socket, p.sub.Socket)
	if err == nil {
		logger := p.cfg.log()
		logger.Info().Msg("proxy closed")
	}
	return err
}
