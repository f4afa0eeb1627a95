package main

import (
	"errors"
	"fmt"

	"github.com/multifrost/zframe"
)

// relay is the surface shared by zframe.Broker and zframe.XPubSubProxy.
type relay interface {
	Name() string
	Endpoints() zframe.RelayEndpoints
	Running() bool
	Metrics() *zframe.RelayMetrics
	Close() error
}

var (
	_ relay = (*zframe.Broker)(nil)
	_ relay = (*zframe.XPubSubProxy)(nil)
)

// supervisor owns every relay started from one RelayConfig.
type supervisor struct {
	cfg        zframe.RelayConfig
	relays     []relay
	registered []string
}

// startRelays sets up every configured relay. On failure the relays that
// did start are closed again.
func startRelays(cfg zframe.RelayConfig, opts ...zframe.RelayOption) (*supervisor, error) {
	s := &supervisor{cfg: cfg}

	for _, bc := range cfg.Brokers {
		b := zframe.NewBroker(append(cfg.RelayOptions(bc.Name), opts...)...)
		if err := b.Setup(bc.Frontend, bc.Backend); err != nil {
			_ = b.Close()
			return nil, errors.Join(err, s.stop())
		}
		s.add(b)
	}
	for _, pc := range cfg.Proxies {
		p := zframe.NewXPubSubProxy(append(cfg.RelayOptions(pc.Name), opts...)...)
		if err := p.Setup(pc.Publish, pc.Subscribe); err != nil {
			_ = p.Close()
			return nil, errors.Join(err, s.stop())
		}
		s.add(p)
	}
	return s, nil
}

func (s *supervisor) add(r relay) {
	s.relays = append(s.relays, r)
	if !s.cfg.Register {
		return
	}

	endpoints := r.Endpoints()
	endpoints.Frontend = zframe.ConnectEndpoint(endpoints.Frontend)
	endpoints.Backend = zframe.ConnectEndpoint(endpoints.Backend)
	if err := zframe.RegisterRelay(r.Name(), endpoints); err != nil {
		logger := zframe.Logger()
		logger.Warn().Err(err).Str("relay", r.Name()).Msg("failed to register relay")
		return
	}
	s.registered = append(s.registered, r.Name())
}

// stop closes every relay and removes the registry entries it wrote.
func (s *supervisor) stop() error {
	var errs []error
	for _, name := range s.registered {
		if err := zframe.UnregisterRelay(name); err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", name, err))
		}
	}
	s.registered = nil

	for _, r := range s.relays {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.relays = nil
	return errors.Join(errs...)
}

func (s *supervisor) running() int {
	n := 0
	for _, r := range s.relays {
		if r.Running() {
			n++
		}
	}
	return n
}
