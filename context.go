package zframe

import (
	"context"
	"sync"
)

var (
	transportCtx     context.Context
	transportCtxOnce sync.Once

	defaultTransport     Transport
	defaultTransportOnce sync.Once
)

// TransportContext returns the process-wide context every zmq4 socket
// created by DefaultTransport derives from. It is created on first use and
// never cancelled; sockets are released individually by Close.
func TransportContext() context.Context {
	transportCtxOnce.Do(func() {
		transportCtx = context.Background()
	})
	return transportCtx
}

// DefaultTransport returns the process-wide zmq4 transport used by socket
// constructors unless WithTransport overrides it. It is created once, on
// first use.
func DefaultTransport() Transport {
	defaultTransportOnce.Do(func() {
		defaultTransport = NewZMQTransport(TransportContext())
	})
	return defaultTransport
}
