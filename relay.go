package zframe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollInterval is the pause between relay iterations.
	DefaultPollInterval = time.Millisecond
	// DefaultShutdownTimeout bounds how long Close waits for a relay worker.
	DefaultShutdownTimeout = 5 * time.Second
)

var (
	// ErrShutdownTimeout is returned when a relay worker does not stop
	// before the deadline. Its sockets are left open in that case.
	ErrShutdownTimeout = errors.New("zframe: relay worker did not stop in time")
	// ErrAlreadyRunning is returned by Setup on a running relay.
	ErrAlreadyRunning = errors.New("zframe: relay already running")
)

// RelayKind identifies the relay flavour.
type RelayKind string

const (
	RelayKindBroker RelayKind = "broker"
	RelayKindProxy  RelayKind = "proxy"
)

// RelayEndpoints are the addresses a relay is bound to.
//
// For a Broker, Frontend is the ROUTER side (clients) and Backend the
// DEALER side (workers). For an XPubSubProxy, Frontend is the XSUB side
// (publishers connect) and Backend the XPUB side (subscribers connect).
type RelayEndpoints struct {
	Kind     RelayKind `json:"kind"`
	Frontend string    `json:"frontend"`
	Backend  string    `json:"backend"`
}

// RelayError describes a relay failure.
type RelayError struct {
	Relay string
	Op    string
	Err   error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay %s: %s: %s", e.Relay, e.Op, e.Err.Error())
	}
	return fmt.Sprintf("relay %s: %s", e.Relay, e.Op)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *RelayError) Unwrap() error {
	return e.Err
}

// RelayOption configures a Broker or XPubSubProxy.
type RelayOption func(*relayConfig)

type relayConfig struct {
	name            string
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	metrics         *RelayMetrics
	logger          *zerolog.Logger
	socketOpts      []SocketOption
}

// WithName names the relay in logs, metrics and the registry.
func WithName(name string) RelayOption {
	return func(c *relayConfig) {
		c.name = name
	}
}

// WithPollInterval sets the pause between relay iterations.
func WithPollInterval(d time.Duration) RelayOption {
	return func(c *relayConfig) {
		c.pollInterval = d
	}
}

// WithShutdownTimeout bounds the wait performed by Close.
func WithShutdownTimeout(d time.Duration) RelayOption {
	return func(c *relayConfig) {
		c.shutdownTimeout = d
	}
}

// WithMetrics records relay traffic into m.
func WithMetrics(m *RelayMetrics) RelayOption {
	return func(c *relayConfig) {
		c.metrics = m
	}
}

// WithLogger logs relay events to l instead of the package logger.
func WithLogger(l zerolog.Logger) RelayOption {
	return func(c *relayConfig) {
		c.logger = &l
	}
}

// WithSocketOptions applies opts to both relay sockets.
func WithSocketOptions(opts ...SocketOption) RelayOption {
	return func(c *relayConfig) {
		c.socketOpts = append(c.socketOpts, opts...)
	}
}

func newRelayConfig(kind RelayKind, opts []RelayOption) relayConfig {
	cfg := relayConfig{
		pollInterval:    DefaultPollInterval,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s-%s", kind, uuid.New().String()[:8])
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = DefaultPollInterval
	}
	if cfg.shutdownTimeout <= 0 {
		cfg.shutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.metrics == nil {
		cfg.metrics = NewRelayMetrics(cfg.name, 0)
	}
	return cfg
}

func (c relayConfig) log() zerolog.Logger {
	l := Logger()
	if c.logger != nil {
		l = *c.logger
	}
	return l.With().Str("relay", c.name).Logger()
}

// relayWorker runs one background loop. The loop checks running once per
// iteration and closes finished when it has stopped touching its sockets.
type relayWorker struct {
	log      zerolog.Logger
	interval time.Duration

	running  atomic.Bool
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	finished chan struct{}
}

func newRelayWorker(log zerolog.Logger, interval time.Duration) *relayWorker {
	return &relayWorker{
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (w *relayWorker) start(step func(running func() bool) int, metrics *RelayMetrics) {
	w.started = true
	w.running.Store(true)
	go w.loop(step, metrics)
}

func (w *relayWorker) loop(step func(running func() bool) int, metrics *RelayMetrics) {
	defer close(w.finished)

	w.log.Debug().Dur("interval", w.interval).Msg("relay worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for w.running.Load() {
		moved := step(w.running.Load)
		metrics.RecordIteration(moved)

		select {
		case <-w.stop:
			w.log.Debug().Msg("relay worker stopped")
			return
		case <-ticker.C:
		}
	}
	w.log.Debug().Msg("relay worker stopped")
}

// stopped reports whether the loop has exited.
func (w *relayWorker) stopped() bool {
	select {
	case <-w.finished:
		return true
	default:
		return false
	}
}

// shutdown clears running and waits for the loop to exit or ctx to end.
func (w *relayWorker) shutdown(ctx context.Context) error {
	if !w.started {
		return nil
	}
	w.running.Store(false)
	w.stopOnce.Do(func() { close(w.stop) })

	select {
	case <-w.finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, ctx.Err())
	}
}

// relayUnits moves every waiting unit from one socket to the other,
// unmodified. It returns the number of units moved.
func relayUnits(log zerolog.Logger, from MultipartReceiver, to MultipartSender, dir Direction, metrics *RelayMetrics, running func() bool) int {
	moved := 0
	for running() && from.HasWaitingMessage() {
		var unit MultipartMessage
		start := time.Now()

		ok, err := from.ReceiveMultipart(&unit)
		if err != nil {
			metrics.RecordReceiveFailure(dir)
			log.Warn().Err(err).Str("direction", string(dir)).Msg("relay receive failed")
			return moved
		}
		if !ok {
			return moved
		}

		if err := to.SendMessage(&unit); err != nil {
			metrics.RecordSendFailure(dir)
			if errors.Is(err, ErrWouldBlock) {
				log.Debug().Str("direction", string(dir)).Int("frames", unit.Len()).Msg("relay peer not ready")
				continue
			}
			log.Warn().Err(err).Str("direction", string(dir)).Int("frames", unit.Len()).Msg("relay send failed")
			continue
		}
		metrics.RecordUnit(dir, unit.Len(), unitBytes(&unit), time.Since(start))
		moved++
	}
	return moved
}

func unitBytes(mm *MultipartMessage) int {
	n := 0
	for i := 0; i < mm.Len(); i++ {
		n += mm.Message(i).Len()
	}
	return n
}

// closeRelay stops the worker within the configured timeout and closes
// both sockets once the worker is known to have exited.
func closeRelay(name string, w *relayWorker, timeout time.Duration, sockets ...*Socket) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := w.shutdown(ctx); err != nil {
		w.log.Error().Err(err).Msg("relay worker did not stop, sockets left open")
		return &RelayError{Relay: name, Op: "shutdown", Err: err}
	}

	var errs []error
	for _, s := range sockets {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &RelayError{Relay: name, Op: "close", Err: err}
	}
	return nil
}
