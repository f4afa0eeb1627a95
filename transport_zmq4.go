package zframe

import (
	"context"
	"fmt"
	"sync"
	"time"

	zmq "github.com/go-zeromq/zmq4"
)

// DefaultHighWaterMark matches the libzmq default queue limit.
const DefaultHighWaterMark = 1000

const (
	// nonblockingSendWait bounds how long a nonblocking send waits for
	// zmq4 to accept a unit before reporting ErrWouldBlock.
	nonblockingSendWait = 20 * time.Millisecond
	// subscriptionRefresh is how often an XSUB repeats its subscriptions
	// so publishers that connected later receive them.
	subscriptionRefresh = 100 * time.Millisecond
)

// ZMQTransport opens sockets backed by github.com/go-zeromq/zmq4.
type ZMQTransport struct {
	ctx  context.Context
	opts []zmq.Option
}

// NewZMQTransport creates a transport whose sockets derive from ctx. Extra
// zmq4 options (dialer retry, timeouts, security) apply to every socket.
func NewZMQTransport(ctx context.Context, opts ...zmq.Option) *ZMQTransport {
	return &ZMQTransport{ctx: ctx, opts: opts}
}

// Open returns a socket for the pattern. The zmq4 socket itself is created
// on the first Connect or Bind, so identity and queue limits set before
// that take effect.
func (t *ZMQTransport) Open(pattern Pattern) RawSocket {
	return &zmqSocket{
		ctx:           t.ctx,
		pattern:       pattern,
		baseOpts:      t.opts,
		sendHWM:       DefaultHighWaterMark,
		recvHWM:       DefaultHighWaterMark,
		subscriptions: make(map[string]struct{}),
		inbox:         make(chan zmq.Msg, DefaultHighWaterMark),
		closedCh:      make(chan struct{}),
	}
}

type zmqSocket struct {
	ctx      context.Context
	pattern  Pattern
	baseOpts []zmq.Option

	// mu guards the underlying socket and its receive pump, which are
	// swapped when an endpoint is removed.
	mu       sync.Mutex
	sock     zmq.Socket
	stop     chan struct{}
	pumpDone chan struct{}
	sendq    chan sendRequest
	closed   bool
	closedCh chan struct{}

	identity      []byte
	sendHWM       int
	recvHWM       int
	hwmSet        bool
	subscriptions map[string]struct{}
	dropped       map[string]struct{}
	dialed        []string
	bound         []string

	inbox    chan zmq.Msg
	pending  [][]byte
	outgoing [][]byte
}

func (s *zmqSocket) Pattern() Pattern {
	return s.pattern
}

func (s *zmqSocket) Connect(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, err := s.ensureSocket()
	if err != nil {
		return err
	}
	if err := sock.Dial(endpoint); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	s.dialed = append(s.dialed, endpoint)
	return nil
}

func (s *zmqSocket) Bind(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sock, err := s.ensureSocket()
	if err != nil {
		return err
	}
	if err := sock.Listen(endpoint); err != nil {
		return fmt.Errorf("failed to bind to %s: %w", endpoint, err)
	}
	s.bound = append(s.bound, endpoint)
	return nil
}

// Disconnect drops endpoint. zmq4 cannot detach a single peer, so the
// underlying socket is rebuilt with the remaining endpoints.
func (s *zmqSocket) Disconnect(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest, ok := without(s.dialed, endpoint)
	if !ok {
		return fmt.Errorf("not connected to %s", endpoint)
	}
	s.dialed = rest
	return s.rebuild()
}

// Unbind stops listening on endpoint, rebuilding the socket like
// Disconnect.
func (s *zmqSocket) Unbind(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest, ok := without(s.bound, endpoint)
	if !ok {
		return fmt.Errorf("not bound to %s", endpoint)
	}
	s.bound = rest
	return s.rebuild()
}

type sendRequest struct {
	msg  zmq.Msg
	done chan error
}

// Send queues frames flagged More and hands the whole unit to the sender
// goroutine with the final frame. zmq4 blocks sends on patterns that wait
// for a peer (PUSH, DEALER, REQ, PAIR), so a nonblocking send waits at most
// nonblockingSendWait and then reports ErrWouldBlock. A unit that was
// handed over stays in flight and is delivered once zmq4 accepts it; until
// then further nonblocking sends report ErrWouldBlock.
func (s *zmqSocket) Send(frame []byte, flags SendFlag) error {
	s.mu.Lock()
	closed, sendq, stop := s.closed, s.sendq, s.stop
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if flags.More {
		s.outgoing = append(s.outgoing, frame)
		return nil
	}

	frames := append(s.outgoing, frame)
	s.outgoing = nil
	if sendq == nil {
		return ErrNotConnected
	}
	req := sendRequest{msg: zmq.NewMsgFrom(frames...), done: make(chan error, 1)}

	var expired <-chan time.Time
	if flags.Nonblocking {
		timer := time.NewTimer(nonblockingSendWait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case sendq <- req:
	case <-expired:
		return ErrWouldBlock
	case <-stop:
		return ErrClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-expired:
		return ErrWouldBlock
	case <-stop:
		return ErrClosed
	}
}

// sender performs zmq4 sends for one underlying socket so a send blocked
// on a missing peer never holds the caller.
func (s *zmqSocket) sender(sock zmq.Socket, sendq <-chan sendRequest, stop <-chan struct{}) {
	for {
		select {
		case req := <-sendq:
			var err error
			if len(req.msg.Frames) == 1 {
				err = sock.Send(req.msg)
			} else {
				err = sock.SendMulti(req.msg)
			}
			req.done <- err
		case <-stop:
			return
		}
	}
}

// announce sends the XSUB subscriptions upstream, then repeats them every
// subscriptionRefresh for publishers that connect later. zmq4 XSUB does
// not turn the subscribe option into subscription messages itself.
func (s *zmqSocket) announce(sock zmq.Socket, stop <-chan struct{}) {
	ticker := time.NewTicker(subscriptionRefresh)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		msgs := make([]zmq.Msg, 0, len(s.dropped)+len(s.subscriptions))
		for topic := range s.dropped {
			msgs = append(msgs, zmq.NewMsg(append([]byte{0}, topic...)))
		}
		s.dropped = nil
		for topic := range s.subscriptions {
			msgs = append(msgs, zmq.NewMsg(append([]byte{1}, topic...)))
		}
		s.mu.Unlock()

		for _, msg := range msgs {
			if err := sock.Send(msg); err != nil {
				select {
				case <-stop:
					return
				default:
				}
				logger := Logger()
				logger.Debug().Err(err).Msg("xsub subscription not sent")
				break
			}
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *zmqSocket) Recv(flags ReceiveFlag) ([]byte, bool, error) {
	if len(s.pending) == 0 {
		if flags.Nonblocking {
			select {
			case msg := <-s.inbox:
				s.load(msg)
			default:
				return nil, false, ErrWouldBlock
			}
		} else {
			select {
			case msg := <-s.inbox:
				s.load(msg)
			case <-s.closedCh:
				return nil, false, ErrClosed
			}
		}
	}

	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, len(s.pending) > 0, nil
}

func (s *zmqSocket) Poll(timeout time.Duration) (bool, error) {
	if len(s.pending) > 0 {
		return true, nil
	}
	if timeout <= 0 {
		select {
		case msg := <-s.inbox:
			s.load(msg)
			return true, nil
		default:
			return false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-s.inbox:
		s.load(msg)
		return true, nil
	case <-timer.C:
		return false, nil
	case <-s.closedCh:
		return false, ErrClosed
	}
}

func (s *zmqSocket) SetOption(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionIdentity:
		id, err := bytesOption(name, value)
		if err != nil {
			return err
		}
		s.identity = id
		return nil
	case OptionSubscribe, OptionUnsubscribe:
		raw, err := bytesOption(name, value)
		if err != nil {
			return err
		}
		topic := string(raw)
		if name == OptionSubscribe {
			s.subscriptions[topic] = struct{}{}
		} else {
			delete(s.subscriptions, topic)
		}
		if s.pattern == PatternXSub {
			// sent upstream by announce
			if name == OptionUnsubscribe {
				if s.dropped == nil {
					s.dropped = make(map[string]struct{})
				}
				s.dropped[topic] = struct{}{}
			}
			return nil
		}
		if s.sock == nil {
			return nil
		}
		zname := zmq.OptionSubscribe
		if name == OptionUnsubscribe {
			zname = zmq.OptionUnsubscribe
		}
		return s.sock.SetOption(zname, topic)
	case OptionSendHWM, OptionRecvHWM:
		hwm, ok := value.(int)
		if !ok || hwm < 0 {
			return fmt.Errorf("option %s: expected non-negative int, got %T", name, value)
		}
		if name == OptionSendHWM {
			s.sendHWM = hwm
		} else {
			s.recvHWM = hwm
		}
		s.hwmSet = true
		if s.sock == nil {
			return nil
		}
		return s.sock.SetOption(zmq.OptionHWM, max(s.sendHWM, s.recvHWM))
	default:
		if s.sock == nil {
			return fmt.Errorf("option %s: socket not connected or bound", name)
		}
		return s.sock.SetOption(name, value)
	}
}

func (s *zmqSocket) GetOption(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionIdentity:
		if s.identity == nil && s.sock != nil {
			return s.sock.GetOption(name)
		}
		return append([]byte{}, s.identity...), nil
	case OptionSendHWM:
		return s.sendHWM, nil
	case OptionRecvHWM:
		return s.recvHWM, nil
	default:
		if s.sock == nil {
			return nil, fmt.Errorf("option %s: socket not connected or bound", name)
		}
		return s.sock.GetOption(name)
	}
}

func (s *zmqSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock != nil && len(s.dialed)+len(s.bound) > 0
}

func (s *zmqSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closedCh)
	return s.release()
}

// ensureSocket creates the zmq4 socket and its receive pump on first use.
// Callers hold mu.
func (s *zmqSocket) ensureSocket() (zmq.Socket, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.sock != nil {
		return s.sock, nil
	}

	opts := append([]zmq.Option{}, s.baseOpts...)
	if len(s.identity) > 0 {
		opts = append(opts, zmq.WithID(zmq.SocketIdentity(s.identity)))
	}
	sock, err := newZMQSocket(s.ctx, s.pattern, opts...)
	if err != nil {
		return nil, err
	}

	if s.hwmSet {
		hwm := s.sendHWM
		if s.recvHWM > hwm {
			hwm = s.recvHWM
		}
		if err := sock.SetOption(zmq.OptionHWM, hwm); err != nil {
			logger := Logger()
			logger.Debug().Err(err).Str("pattern", string(s.pattern)).Msg("high water mark not applied")
		}
	}
	if s.pattern == PatternSub {
		for topic := range s.subscriptions {
			if err := sock.SetOption(zmq.OptionSubscribe, topic); err != nil {
				sock.Close()
				return nil, fmt.Errorf("subscribe %q: %w", topic, err)
			}
		}
	}

	s.sock = sock
	s.stop = make(chan struct{})
	s.sendq = make(chan sendRequest)
	go s.sender(sock, s.sendq, s.stop)
	if s.pattern == PatternXSub {
		go s.announce(sock, s.stop)
	}
	if receives(s.pattern) {
		s.pumpDone = make(chan struct{})
		go s.pump(sock, s.stop, s.pumpDone)
	}
	return sock, nil
}

// rebuild replaces the zmq4 socket and re-attaches the remaining
// endpoints. Frames already pumped into the inbox are kept.
func (s *zmqSocket) rebuild() error {
	if err := s.release(); err != nil {
		return err
	}
	if len(s.dialed)+len(s.bound) == 0 {
		return nil
	}

	sock, err := s.ensureSocket()
	if err != nil {
		return err
	}
	for _, ep := range s.bound {
		if err := sock.Listen(ep); err != nil {
			return fmt.Errorf("failed to bind to %s: %w", ep, err)
		}
	}
	for _, ep := range s.dialed {
		if err := sock.Dial(ep); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", ep, err)
		}
	}
	return nil
}

// release stops the pump, sender and announce goroutines and closes the
// zmq4 socket. A sender stuck in a zmq4 send is not waited for. Callers
// hold mu.
func (s *zmqSocket) release() error {
	if s.sock == nil {
		return nil
	}
	sock, stop, done := s.sock, s.stop, s.pumpDone
	s.sock, s.stop, s.pumpDone, s.sendq = nil, nil, nil, nil

	if stop != nil {
		close(stop)
	}
	err := sock.Close()
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
			logger := Logger()
			logger.Warn().Str("pattern", string(s.pattern)).Msg("receive pump did not stop")
		}
	}
	return err
}

// pump moves whole zmq4 messages into the inbox until stop is closed.
func (s *zmqSocket) pump(sock zmq.Socket, stop, done chan struct{}) {
	defer close(done)
	for {
		msg, err := sock.Recv()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			// zmq4 reports peer churn as receive errors
			time.Sleep(10 * time.Millisecond)
			continue
		}
		select {
		case s.inbox <- msg:
		case <-stop:
			return
		}
	}
}

func (s *zmqSocket) load(msg zmq.Msg) {
	if len(msg.Frames) == 0 {
		s.pending = [][]byte{{}}
		return
	}
	s.pending = msg.Frames
}

func newZMQSocket(ctx context.Context, pattern Pattern, opts ...zmq.Option) (zmq.Socket, error) {
	switch pattern {
	case PatternPub:
		return zmq.NewPub(ctx, opts...), nil
	case PatternSub:
		return zmq.NewSub(ctx, opts...), nil
	case PatternReq:
		return zmq.NewReq(ctx, opts...), nil
	case PatternRep:
		return zmq.NewRep(ctx, opts...), nil
	case PatternPush:
		return zmq.NewPush(ctx, opts...), nil
	case PatternPull:
		return zmq.NewPull(ctx, opts...), nil
	case PatternPair:
		return zmq.NewPair(ctx, opts...), nil
	case PatternRouter:
		return zmq.NewRouter(ctx, opts...), nil
	case PatternDealer:
		return zmq.NewDealer(ctx, opts...), nil
	case PatternXPub:
		return zmq.NewXPub(ctx, opts...), nil
	case PatternXSub:
		return zmq.NewXSub(ctx, opts...), nil
	default:
		return nil, fmt.Errorf("unknown socket pattern %q", pattern)
	}
}

// receives reports whether sockets of the pattern deliver data frames.
func receives(p Pattern) bool {
	switch p {
	case PatternPub, PatternPush, PatternXPub:
		return false
	default:
		return true
	}
}

func bytesOption(name string, value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte{}, v...), nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("option %s: expected string or []byte, got %T", name, value)
	}
}

func without(list []string, item string) ([]string, bool) {
	for i, v := range list {
		if v == item {
			out := append([]string{}, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}
