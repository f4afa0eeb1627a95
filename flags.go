package zframe

// SendFlag controls a single frame send.
type SendFlag struct {
	// Nonblocking returns ErrWouldBlock instead of waiting when the
	// transport cannot accept the frame yet.
	Nonblocking bool
	// More marks the frame as a non-final part of a multipart unit.
	More bool
}

var (
	SendFlagNone            = SendFlag{Nonblocking: false, More: false}
	SendFlagNonblocking     = SendFlag{Nonblocking: true, More: false}
	SendFlagMore            = SendFlag{Nonblocking: false, More: true}
	SendFlagNonblockingMore = SendFlag{Nonblocking: true, More: true}
)

// DefaultSendFlag is used when no flag is given.
var DefaultSendFlag = SendFlagNonblocking

// ReceiveFlag controls a single frame receive.
type ReceiveFlag struct {
	Nonblocking bool
}

var (
	ReceiveFlagNone        = ReceiveFlag{Nonblocking: false}
	ReceiveFlagNonblocking = ReceiveFlag{Nonblocking: true}
)

// DefaultReceiveFlag is used when no flag is given.
var DefaultReceiveFlag = ReceiveFlagNonblocking

func sendFlagOr(flags []SendFlag) SendFlag {
	if len(flags) > 0 {
		return flags[len(flags)-1]
	}
	return DefaultSendFlag
}

func receiveFlagOr(flags []ReceiveFlag) ReceiveFlag {
	if len(flags) > 0 {
		return flags[len(flags)-1]
	}
	return DefaultReceiveFlag
}

// splitSendFlag pulls an optional trailing SendFlag off a value list.
func splitSendFlag(values []any) ([]any, SendFlag) {
	if n := len(values); n > 0 {
		if f, ok := values[n-1].(SendFlag); ok {
			return values[:n-1], f
		}
	}
	return values, DefaultSendFlag
}

// splitReceiveFlag pulls an optional trailing ReceiveFlag off an output list.
func splitReceiveFlag(outs []any) ([]any, ReceiveFlag) {
	if n := len(outs); n > 0 {
		if f, ok := outs[n-1].(ReceiveFlag); ok {
			return outs[:n-1], f
		}
	}
	return outs, DefaultReceiveFlag
}
