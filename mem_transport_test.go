package zframe

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// memTransport is an in-process Transport used by tests. It routes whole
// units between sockets linked through endpoints registered on a hub:
//   - PUB and XPUB fan out to every peer, filtering SUB and XSUB peers by
//     prefix
//   - ROUTER prepends the sender identity on receive and routes sends by
//     the first frame
//   - REP replies to the peer that sent the last request
//   - every other pattern round-robins over its peers; a nonblocking send
//     with no peer reports ErrWouldBlock
type memTransport struct {
	mu    sync.Mutex
	bound map[string]*memSocket
}

var memSocketSeq atomic.Int64

func newMemTransport() *memTransport {
	return &memTransport{bound: make(map[string]*memSocket)}
}

func (t *memTransport) Open(pattern Pattern) RawSocket {
	return &memSocket{
		hub:      t,
		pattern:  pattern,
		identity: []byte(fmt.Sprintf("mem-%d", memSocketSeq.Add(1))),
		sendHWM:  DefaultHighWaterMark,
		recvHWM:  DefaultHighWaterMark,
		subs:     make(map[string]struct{}),
		inbox:    make(chan memUnit, 1024),
		closedCh: make(chan struct{}),
	}
}

type memUnit struct {
	from   *memSocket
	frames [][]byte
}

type memSocket struct {
	hub     *memTransport
	pattern Pattern

	mu       sync.Mutex
	identity []byte
	sendHWM  int
	recvHWM  int
	subs     map[string]struct{}
	peers    []*memSocket
	bound    []string
	dialed   []string
	rr       int
	lastFrom *memSocket
	closed   bool
	closedCh chan struct{}

	inbox    chan memUnit
	pending  [][]byte
	outgoing [][]byte
}

func (s *memSocket) Pattern() Pattern { return s.pattern }

func (s *memSocket) Bind(endpoint string) error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, taken := s.hub.bound[endpoint]; taken {
		return fmt.Errorf("failed to bind to %s: address in use", endpoint)
	}
	s.hub.bound[endpoint] = s

	s.mu.Lock()
	s.bound = append(s.bound, endpoint)
	s.mu.Unlock()
	return nil
}

func (s *memSocket) Connect(endpoint string) error {
	s.hub.mu.Lock()
	peer, ok := s.hub.bound[endpoint]
	s.hub.mu.Unlock()
	if !ok {
		return fmt.Errorf("failed to connect to %s: nothing bound", endpoint)
	}

	s.mu.Lock()
	s.peers = append(s.peers, peer)
	s.dialed = append(s.dialed, endpoint)
	s.mu.Unlock()

	peer.mu.Lock()
	peer.peers = append(peer.peers, s)
	peer.mu.Unlock()
	return nil
}

func (s *memSocket) Disconnect(endpoint string) error {
	s.mu.Lock()
	rest, ok := without(s.dialed, endpoint)
	s.dialed = rest
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("not connected to %s", endpoint)
	}

	s.hub.mu.Lock()
	peer := s.hub.bound[endpoint]
	s.hub.mu.Unlock()
	if peer != nil {
		unlink(s, peer)
	}
	return nil
}

func (s *memSocket) Unbind(endpoint string) error {
	s.hub.mu.Lock()
	if s.hub.bound[endpoint] != s {
		s.hub.mu.Unlock()
		return fmt.Errorf("not bound to %s", endpoint)
	}
	delete(s.hub.bound, endpoint)
	s.hub.mu.Unlock()

	s.mu.Lock()
	s.bound, _ = without(s.bound, endpoint)
	peers := append([]*memSocket{}, s.peers...)
	s.mu.Unlock()
	for _, p := range peers {
		unlink(s, p)
	}
	return nil
}

func unlink(a, b *memSocket) {
	drop := func(s, peer *memSocket) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, p := range s.peers {
			if p == peer {
				s.peers = append(s.peers[:i:i], s.peers[i+1:]...)
				return
			}
		}
	}
	drop(a, b)
	drop(b, a)
}

func (s *memSocket) Send(frame []byte, flags SendFlag) error {
	s.mu.Lock()
	closed := s.closed
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

	if !s.Connected() {
		return ErrNotConnected
	}
	return s.route(frames, flags)
}

func (s *memSocket) route(frames [][]byte, flags SendFlag) error {
	s.mu.Lock()
	peers := append([]*memSocket{}, s.peers...)
	last := s.lastFrom
	s.mu.Unlock()

	switch s.pattern {
	case PatternPub, PatternXPub:
		for _, p := range peers {
			if p.accepts(frames[0]) {
				p.deliver(s, frames)
			}
		}
	case PatternRouter:
		id := string(frames[0])
		for _, p := range peers {
			if p.Identity() == id {
				p.deliver(s, frames[1:])
				return nil
			}
		}
	case PatternRep:
		if last != nil {
			last.deliver(s, frames)
		}
	default:
		if len(peers) == 0 {
			if flags.Nonblocking {
				return ErrWouldBlock
			}
			return nil
		}
		s.mu.Lock()
		p := peers[s.rr%len(peers)]
		s.rr++
		s.mu.Unlock()
		p.deliver(s, frames)
	}
	return nil
}

// accepts applies SUB and XSUB prefix filtering; other patterns take
// everything.
func (s *memSocket) accepts(topic []byte) bool {
	if s.pattern != PatternSub && s.pattern != PatternXSub {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for prefix := range s.subs {
		if strings.HasPrefix(string(topic), prefix) {
			return true
		}
	}
	return false
}

func (s *memSocket) deliver(from *memSocket, frames [][]byte) {
	if !receives(s.pattern) {
		return
	}
	unit := make([][]byte, 0, len(frames)+1)
	if s.pattern == PatternRouter {
		unit = append(unit, []byte(from.Identity()))
	}
	for _, f := range frames {
		unit = append(unit, append([]byte{}, f...))
	}
	select {
	case s.inbox <- memUnit{from: from, frames: unit}:
	default:
	}
}

func (s *memSocket) load(u memUnit) {
	s.mu.Lock()
	s.lastFrom = u.from
	s.mu.Unlock()
	s.pending = u.frames
	if len(s.pending) == 0 {
		s.pending = [][]byte{{}}
	}
}

func (s *memSocket) Recv(flags ReceiveFlag) ([]byte, bool, error) {
	if len(s.pending) == 0 {
		if flags.Nonblocking {
			select {
			case u := <-s.inbox:
				s.load(u)
			default:
				return nil, false, ErrWouldBlock
			}
		} else {
			select {
			case u := <-s.inbox:
				s.load(u)
			case <-s.closedCh:
				return nil, false, ErrClosed
			}
		}
	}
	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, len(s.pending) > 0, nil
}

func (s *memSocket) Poll(timeout time.Duration) (bool, error) {
	if len(s.pending) > 0 {
		return true, nil
	}
	if timeout <= 0 {
		select {
		case u := <-s.inbox:
			s.load(u)
			return true, nil
		default:
			return false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case u := <-s.inbox:
		s.load(u)
		return true, nil
	case <-timer.C:
		return false, nil
	case <-s.closedCh:
		return false, ErrClosed
	}
}

func (s *memSocket) SetOption(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionIdentity:
		id, err := bytesOption(name, value)
		if err != nil {
			return err
		}
		s.identity = id
	case OptionSubscribe:
		topic, err := bytesOption(name, value)
		if err != nil {
			return err
		}
		s.subs[string(topic)] = struct{}{}
	case OptionUnsubscribe:
		topic, err := bytesOption(name, value)
		if err != nil {
			return err
		}
		delete(s.subs, string(topic))
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
	default:
		return fmt.Errorf("option %s: unsupported", name)
	}
	return nil
}

func (s *memSocket) GetOption(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case OptionIdentity:
		return append([]byte{}, s.identity...), nil
	case OptionSendHWM:
		return s.sendHWM, nil
	case OptionRecvHWM:
		return s.recvHWM, nil
	default:
		return nil, fmt.Errorf("option %s: unsupported", name)
	}
}

func (s *memSocket) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.identity)
}

func (s *memSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bound)+len(s.dialed) > 0
}

func (s *memSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedCh)
	bound := append([]string{}, s.bound...)
	peers := append([]*memSocket{}, s.peers...)
	s.mu.Unlock()

	s.hub.mu.Lock()
	for _, ep := range bound {
		if s.hub.bound[ep] == s {
			delete(s.hub.bound, ep)
		}
	}
	s.hub.mu.Unlock()
	for _, p := range peers {
		unlink(s, p)
	}
	return nil
}
