package zframe

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyMessage is returned when sending a multipart message with no
// frames.
var ErrEmptyMessage = errors.New("zframe: empty multipart message")

// SocketOption configures a socket at construction.
type SocketOption func(*socketConfig)

type socketConfig struct {
	transport Transport
	identity  string
	sendHWM   int
	recvHWM   int
}

// WithTransport opens the socket on t instead of DefaultTransport.
func WithTransport(t Transport) SocketOption {
	return func(c *socketConfig) {
		c.transport = t
	}
}

// WithIdentity sets the socket identity before it connects or binds.
func WithIdentity(id string) SocketOption {
	return func(c *socketConfig) {
		c.identity = id
	}
}

// WithRandomIdentity assigns a fresh UUID identity.
func WithRandomIdentity() SocketOption {
	return func(c *socketConfig) {
		c.identity = uuid.New().String()
	}
}

// WithHighWaterMarks sets the send and receive queue limits before the
// socket connects or binds. Zero leaves a direction at its default.
func WithHighWaterMarks(send, recv int) SocketOption {
	return func(c *socketConfig) {
		c.sendHWM = send
		c.recvHWM = recv
	}
}

// Socket wraps one transport socket fixed to a Pattern. The role types
// (Publisher, Subscriber, ...) embed it and expose only the operations
// legal for their pattern.
//
// A Socket must not be used from more than one goroutine at a time.
type Socket struct {
	raw RawSocket
	// ready holds the result of the last readiness poll.
	ready bool
}

func newSocket(pattern Pattern, opts []SocketOption) *Socket {
	cfg := socketConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transport == nil {
		cfg.transport = DefaultTransport()
	}

	s := &Socket{raw: cfg.transport.Open(pattern)}
	if cfg.identity != "" {
		s.warnIf(s.SetIdentity(cfg.identity), "set identity")
	}
	if cfg.sendHWM > 0 {
		s.warnIf(s.SetSendHighWaterMark(cfg.sendHWM), "set send high water mark")
	}
	if cfg.recvHWM > 0 {
		s.warnIf(s.SetReceiveHighWaterMark(cfg.recvHWM), "set receive high water mark")
	}
	return s
}

// Pattern returns the socket's fixed pattern.
func (s *Socket) Pattern() Pattern {
	return s.raw.Pattern()
}

// Raw returns the underlying transport socket.
func (s *Socket) Raw() RawSocket {
	return s.raw
}

// IsConnected reports whether the socket has at least one endpoint.
func (s *Socket) IsConnected() bool {
	return s.raw.Connected()
}

// Close releases the transport socket.
func (s *Socket) Close() error {
	return s.raw.Close()
}

// SetIdentity sets the routing identity. It must be called before Connect
// or Bind to take effect.
func (s *Socket) SetIdentity(id string) error {
	return s.raw.SetOption(OptionIdentity, id)
}

// Identity returns the routing identity, or "" if none is set.
func (s *Socket) Identity() string {
	v, err := s.raw.GetOption(OptionIdentity)
	if err != nil {
		return ""
	}
	switch id := v.(type) {
	case []byte:
		return string(id)
	case string:
		return id
	default:
		return ""
	}
}

// SetSendHighWaterMark limits the outbound queue.
func (s *Socket) SetSendHighWaterMark(maxQueueSize int) error {
	return s.raw.SetOption(OptionSendHWM, maxQueueSize)
}

// SetReceiveHighWaterMark limits the inbound queue.
func (s *Socket) SetReceiveHighWaterMark(maxQueueSize int) error {
	return s.raw.SetOption(OptionRecvHWM, maxQueueSize)
}

// SendHighWaterMark returns the outbound queue limit.
func (s *Socket) SendHighWaterMark() int {
	return s.intOption(OptionSendHWM)
}

// ReceiveHighWaterMark returns the inbound queue limit.
func (s *Socket) ReceiveHighWaterMark() int {
	return s.intOption(OptionRecvHWM)
}

// SetHighWaterMark sets both queue limits.
//
// Deprecated: use SetSendHighWaterMark or SetReceiveHighWaterMark.
func (s *Socket) SetHighWaterMark(maxQueueSize int) error {
	if err := s.SetReceiveHighWaterMark(maxQueueSize); err != nil {
		return err
	}
	return s.SetSendHighWaterMark(maxQueueSize)
}

// HighWaterMark returns the send queue limit.
//
// Deprecated: use SendHighWaterMark or ReceiveHighWaterMark.
func (s *Socket) HighWaterMark() int {
	return s.SendHighWaterMark()
}

func (s *Socket) connect(endpoint string) error {
	return s.raw.Connect(endpoint)
}

func (s *Socket) bind(endpoint string) error {
	return s.raw.Bind(endpoint)
}

func (s *Socket) disconnect(endpoint string) error {
	return s.raw.Disconnect(endpoint)
}

func (s *Socket) unbind(endpoint string) error {
	return s.raw.Unbind(endpoint)
}

// send encodes v into one frame. A *MultipartMessage is sent as a whole
// unit instead.
func (s *Socket) send(v any, flags SendFlag) error {
	if mm, ok := v.(*MultipartMessage); ok {
		return s.sendMessage(mm, flags)
	}
	data, err := Encode(v)
	if err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("pattern", string(s.Pattern())).Msg("send: encode failed")
		return err
	}
	return s.raw.Send(data, flags)
}

// sendMessage transmits every frame of mm, marking all but the last with
// More. flags.More additionally marks the last frame.
func (s *Socket) sendMessage(mm *MultipartMessage, flags SendFlag) error {
	n := mm.Len()
	if n == 0 {
		return ErrEmptyMessage
	}
	for i := 0; i < n; i++ {
		f := SendFlag{Nonblocking: flags.Nonblocking, More: flags.More || i < n-1}
		if err := s.raw.Send(mm.Message(i).Bytes(), f); err != nil {
			return err
		}
	}
	return nil
}

// sendMultipart builds a unit from values, honouring an optional trailing
// SendFlag.
func (s *Socket) sendMultipart(values ...any) error {
	values, flags := splitSendFlag(values)
	if len(values) == 1 {
		if mm, ok := values[0].(*MultipartMessage); ok {
			return s.sendMessage(mm, flags)
		}
	}
	mm, err := NewMultipartMessage(values...)
	if err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("pattern", string(s.Pattern())).Msg("send multipart: encode failed")
		return err
	}
	return s.sendMessage(mm, flags)
}

// receive pulls one frame and decodes it into out. A *MultipartMessage
// receives a whole unit. It returns false without error when nothing is
// ready or the frame does not decode.
func (s *Socket) receive(out any, flags ReceiveFlag) (bool, error) {
	if mm, ok := out.(*MultipartMessage); ok {
		return s.receiveMessage(mm, flags)
	}
	frame, _, err := s.raw.Recv(flags)
	if errors.Is(err, ErrWouldBlock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := Decode(frame, out); err != nil {
		logger := Logger()
		logger.Warn().Err(err).Str("pattern", string(s.Pattern())).Int("len", len(frame)).Msg("receive: decode failed")
		return false, nil
	}
	return true, nil
}

// receiveMessage pulls a whole unit into mm, replacing its frames.
func (s *Socket) receiveMessage(mm *MultipartMessage, flags ReceiveFlag) (bool, error) {
	frame, more, err := s.raw.Recv(flags)
	if errors.Is(err, ErrWouldBlock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	mm.Reset()
	mm.AddFrame(frame)
	for more {
		// the rest of the unit has already arrived
		frame, more, err = s.raw.Recv(ReceiveFlagNone)
		if err != nil {
			return false, err
		}
		mm.AddFrame(frame)
	}
	return true, nil
}

// receiveMultipart pulls a unit and decodes it positionally into outs,
// honouring an optional trailing ReceiveFlag.
func (s *Socket) receiveMultipart(outs ...any) (bool, error) {
	outs, flags := splitReceiveFlag(outs)
	if len(outs) == 1 {
		if mm, ok := outs[0].(*MultipartMessage); ok {
			return s.receiveMessage(mm, flags)
		}
	}

	var mm MultipartMessage
	ok, err := s.receiveMessage(&mm, flags)
	if !ok || err != nil {
		return ok, err
	}
	if len(outs) != mm.Len() {
		logger := Logger()
		logger.Warn().
			Int("arguments", len(outs)).
			Int("frames", mm.Len()).
			Str("pattern", string(s.Pattern())).
			Msg("argument count does not match received frames")
	}
	return mm.ConvertTo(outs...), nil
}

// hasWaitingMessage polls for readiness; a zero timeout checks once.
func (s *Socket) hasWaitingMessage(timeout []time.Duration) bool {
	var d time.Duration
	if len(timeout) > 0 {
		d = timeout[0]
	}
	ok, err := s.raw.Poll(d)
	if err != nil && !errors.Is(err, ErrClosed) {
		logger := Logger()
		logger.Warn().Err(err).Str("pattern", string(s.Pattern())).Msg("poll failed")
	}
	s.ready = ok
	return ok
}

// getNextMessage receives only if the last poll reported readiness.
func (s *Socket) getNextMessage(out any) (bool, error) {
	if !s.ready {
		return false, nil
	}
	s.ready = false
	return s.receive(out, ReceiveFlagNonblocking)
}

func (s *Socket) getNextMessages(outs ...any) (bool, error) {
	if !s.ready {
		return false, nil
	}
	s.ready = false
	outs, _ = splitReceiveFlag(outs)
	return s.receiveMultipart(append(outs, ReceiveFlagNonblocking)...)
}

func (s *Socket) intOption(name string) int {
	v, err := s.raw.GetOption(name)
	if err != nil {
		s.warnIf(err, "get "+name)
		return 0
	}
	n, _ := v.(int)
	return n
}

func (s *Socket) warnIf(err error, what string) {
	if err == nil {
		return
	}
	logger := Logger()
	logger.Warn().Err(err).Str("pattern", string(s.Pattern())).Msg(what)
}
