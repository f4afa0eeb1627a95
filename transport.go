package zframe

import (
	"errors"
	"time"
)

var (
	// ErrWouldBlock reports that no frame is ready (receive) or the frame
	// cannot be queued yet (send). It is an expected condition.
	ErrWouldBlock = errors.New("zframe: would block")
	// ErrNotConnected is returned when sending on a socket that was never
	// connected or bound.
	ErrNotConnected = errors.New("zframe: socket not connected or bound")
	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("zframe: socket closed")
)

// Pattern is the fixed communication topology of a socket.
type Pattern string

const (
	PatternPub    Pattern = "PUB"
	PatternSub    Pattern = "SUB"
	PatternReq    Pattern = "REQ"
	PatternRep    Pattern = "REP"
	PatternPush   Pattern = "PUSH"
	PatternPull   Pattern = "PULL"
	PatternPair   Pattern = "PAIR"
	PatternRouter Pattern = "ROUTER"
	PatternDealer Pattern = "DEALER"
	PatternXPub   Pattern = "XPUB"
	PatternXSub   Pattern = "XSUB"
)

// Option names understood by RawSocket.SetOption and GetOption.
const (
	OptionIdentity    = "IDENTITY"    // []byte
	OptionSubscribe   = "SUBSCRIBE"   // string
	OptionUnsubscribe = "UNSUBSCRIBE" // string
	OptionSendHWM     = "SNDHWM"      // int
	OptionRecvHWM     = "RCVHWM"      // int
)

// RawSocket is the primitive socket contract consumed from the messaging
// library. Implementations are not safe for concurrent use.
type RawSocket interface {
	Pattern() Pattern

	Connect(endpoint string) error
	Bind(endpoint string) error
	Disconnect(endpoint string) error
	Unbind(endpoint string) error

	// Send transmits one frame. Frames flagged More are held until the
	// final frame of the unit is sent.
	Send(frame []byte, flags SendFlag) error
	// Recv returns one frame and whether more frames of the same unit
	// follow. It returns ErrWouldBlock when non-blocking and nothing is
	// ready.
	Recv(flags ReceiveFlag) (frame []byte, more bool, err error)
	// Poll reports whether a frame is ready, waiting at most timeout.
	Poll(timeout time.Duration) (bool, error)

	SetOption(name string, value any) error
	GetOption(name string) (any, error)

	Connected() bool
	Close() error
}

// Transport creates raw sockets.
type Transport interface {
	Open(pattern Pattern) RawSocket
}
