package zframe

import (
	"sort"
	"time"
)

// The operation groups below are embedded by the role types; a role only
// gains the methods of the groups it embeds.

type binding struct{ s *Socket }

// Bind listens on endpoint.
func (b binding) Bind(endpoint string) error { return b.s.bind(endpoint) }

// Unbind stops listening on endpoint.
func (b binding) Unbind(endpoint string) error { return b.s.unbind(endpoint) }

type connecting struct{ s *Socket }

// Connect dials endpoint.
func (c connecting) Connect(endpoint string) error { return c.s.connect(endpoint) }

// Disconnect drops endpoint.
func (c connecting) Disconnect(endpoint string) error { return c.s.disconnect(endpoint) }

type multipartSending struct{ s *Socket }

// SendMultipart sends each value as one frame of a single unit. A trailing
// SendFlag overrides the default non-blocking send.
func (m multipartSending) SendMultipart(values ...any) error {
	return m.s.sendMultipart(values...)
}

// SendMessage sends a prebuilt unit.
func (m multipartSending) SendMessage(mm *MultipartMessage, flags ...SendFlag) error {
	return m.s.sendMessage(mm, sendFlagOr(flags))
}

type sending struct{ multipartSending }

// Send encodes v into one frame. With SendFlagMore the frame becomes a
// non-final part of a unit completed by a later send.
func (m sending) Send(v any, flags ...SendFlag) error {
	return m.s.send(v, sendFlagOr(flags))
}

type multipartReceiving struct{ s *Socket }

// ReceiveMultipart pulls one whole unit and decodes frame i into outs[i].
// Pass a single *MultipartMessage to keep the raw frames instead. A
// trailing ReceiveFlag overrides the default non-blocking receive.
func (m multipartReceiving) ReceiveMultipart(outs ...any) (bool, error) {
	return m.s.receiveMultipart(outs...)
}

// HasWaitingMessage reports whether a message is ready, waiting at most
// the given timeout. Without a timeout it checks once.
func (m multipartReceiving) HasWaitingMessage(timeout ...time.Duration) bool {
	return m.s.hasWaitingMessage(timeout)
}

// GetNextMessages is ReceiveMultipart gated on the last HasWaitingMessage
// result.
func (m multipartReceiving) GetNextMessages(outs ...any) (bool, error) {
	return m.s.getNextMessages(outs...)
}

type receiving struct{ multipartReceiving }

// Receive pulls one frame and decodes it into out. It returns false when
// nothing was waiting.
func (m receiving) Receive(out any, flags ...ReceiveFlag) (bool, error) {
	return m.s.receive(out, receiveFlagOr(flags))
}

// GetNextMessage is Receive gated on the last HasWaitingMessage result.
func (m receiving) GetNextMessage(out any) (bool, error) {
	return m.s.getNextMessage(out)
}

// Publisher broadcasts to subscribers. It cannot receive.
type Publisher struct {
	*Socket
	binding
	connecting
	sending
}

// NewPublisher creates a PUB socket.
func NewPublisher(opts ...SocketOption) *Publisher {
	s := newSocket(PatternPub, opts)
	return &Publisher{
		Socket:     s,
		binding:    binding{s},
		connecting: connecting{s},
		sending:    sending{multipartSending{s}},
	}
}

// Subscriber receives from publishers whose topics match one of its
// filters. The filter set always mirrors the transport subscriptions.
type Subscriber struct {
	*Socket
	receiving
	filters map[string]struct{}
}

// NewSubscriber creates a SUB socket.
func NewSubscriber(opts ...SocketOption) *Subscriber {
	s := newSocket(PatternSub, opts)
	return &Subscriber{
		Socket:    s,
		receiving: receiving{multipartReceiving{s}},
		filters:   make(map[string]struct{}),
	}
}

// Connect dials endpoint. Without any filter the subscriber first
// subscribes to everything.
func (sub *Subscriber) Connect(endpoint string) error {
	if len(sub.filters) == 0 {
		if err := sub.AddFilter(""); err != nil {
			return err
		}
	}
	return sub.connect(endpoint)
}

// Disconnect drops endpoint.
func (sub *Subscriber) Disconnect(endpoint string) error {
	return sub.disconnect(endpoint)
}

// AddFilter subscribes to topics starting with filter.
func (sub *Subscriber) AddFilter(filter string) error {
	if err := sub.raw.SetOption(OptionSubscribe, filter); err != nil {
		return err
	}
	sub.filters[filter] = struct{}{}
	return nil
}

// RemoveFilter unsubscribes filter. It returns false if filter was not
// subscribed.
func (sub *Subscriber) RemoveFilter(filter string) bool {
	if _, ok := sub.filters[filter]; !ok {
		return false
	}
	if err := sub.raw.SetOption(OptionUnsubscribe, filter); err != nil {
		sub.warnIf(err, "unsubscribe "+filter)
		return true
	}
	delete(sub.filters, filter)
	return true
}

// RemoveAllFilters unsubscribes every filter, then clears the set.
func (sub *Subscriber) RemoveAllFilters() {
	for _, f := range sub.Filters() {
		if err := sub.raw.SetOption(OptionUnsubscribe, f); err != nil {
			sub.warnIf(err, "unsubscribe "+f)
			continue
		}
		delete(sub.filters, f)
	}
}

// Filters returns the active filters, sorted.
func (sub *Subscriber) Filters() []string {
	out := make([]string, 0, len(sub.filters))
	for f := range sub.filters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Request is the client side of a request/reply exchange. Alternating
// sends and receives is up to the caller.
type Request struct {
	*Socket
	connecting
	sending
	receiving
}

// NewRequest creates a REQ socket.
func NewRequest(opts ...SocketOption) *Request {
	s := newSocket(PatternReq, opts)
	return &Request{
		Socket:     s,
		connecting: connecting{s},
		sending:    sending{multipartSending{s}},
		receiving:  receiving{multipartReceiving{s}},
	}
}

// Reply is the server side of a request/reply exchange.
type Reply struct {
	*Socket
	binding
	sending
	receiving
}

// NewReply creates a REP socket.
func NewReply(opts ...SocketOption) *Reply {
	s := newSocket(PatternRep, opts)
	return &Reply{
		Socket:    s,
		binding:   binding{s},
		sending:   sending{multipartSending{s}},
		receiving: receiving{multipartReceiving{s}},
	}
}

// Push is the sending stage of a load-balanced pipeline.
type Push struct {
	*Socket
	binding
	connecting
	sending
}

// NewPush creates a PUSH socket.
func NewPush(opts ...SocketOption) *Push {
	s := newSocket(PatternPush, opts)
	return &Push{
		Socket:     s,
		binding:    binding{s},
		connecting: connecting{s},
		sending:    sending{multipartSending{s}},
	}
}

// Pull is the receiving stage of a pipeline.
type Pull struct {
	*Socket
	binding
	connecting
	receiving
}

// NewPull creates a PULL socket.
func NewPull(opts ...SocketOption) *Pull {
	s := newSocket(PatternPull, opts)
	return &Pull{
		Socket:     s,
		binding:    binding{s},
		connecting: connecting{s},
		receiving:  receiving{multipartReceiving{s}},
	}
}

// Pair is one end of an exclusive 1:1 link.
type Pair struct {
	*Socket
	binding
	connecting
	sending
	receiving
}

// NewPair creates a PAIR socket.
func NewPair(opts ...SocketOption) *Pair {
	s := newSocket(PatternPair, opts)
	return &Pair{
		Socket:     s,
		binding:    binding{s},
		connecting: connecting{s},
		sending:    sending{multipartSending{s}},
		receiving:  receiving{multipartReceiving{s}},
	}
}

// Router is the client-facing side of a Broker. It only moves whole units;
// the first frame of each unit is the peer identity.
type Router struct {
	*Socket
	binding
	multipartSending
	multipartReceiving
}

// NewRouter creates a ROUTER socket.
func NewRouter(opts ...SocketOption) *Router {
	s := newSocket(PatternRouter, opts)
	return &Router{
		Socket:             s,
		binding:            binding{s},
		multipartSending:   multipartSending{s},
		multipartReceiving: multipartReceiving{s},
	}
}

// Dealer is the worker-facing side of a Broker. It only moves whole units.
type Dealer struct {
	*Socket
	binding
	multipartSending
	multipartReceiving
}

// NewDealer creates a DEALER socket.
func NewDealer(opts ...SocketOption) *Dealer {
	s := newSocket(PatternDealer, opts)
	return &Dealer{
		Socket:             s,
		binding:            binding{s},
		multipartSending:   multipartSending{s},
		multipartReceiving: multipartReceiving{s},
	}
}

// XPublisher is the subscriber-facing side of an XPubSubProxy.
type XPublisher struct {
	*Socket
	binding
	sending
}

// NewXPublisher creates an XPUB socket.
func NewXPublisher(opts ...SocketOption) *XPublisher {
	s := newSocket(PatternXPub, opts)
	return &XPublisher{
		Socket:  s,
		binding: binding{s},
		sending: sending{multipartSending{s}},
	}
}

// XSubscriber is the publisher-facing side of an XPubSubProxy.
type XSubscriber struct {
	*Socket
	binding
	receiving
}

// NewXSubscriber creates an XSUB socket.
func NewXSubscriber(opts ...SocketOption) *XSubscriber {
	s := newSocket(PatternXSub, opts)
	return &XSubscriber{
		Socket:    s,
		binding:   binding{s},
		receiving: receiving{multipartReceiving{s}},
	}
}
