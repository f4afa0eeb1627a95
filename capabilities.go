package zframe

import "time"

// Binder is implemented by roles that can listen on an endpoint.
type Binder interface {
	Bind(endpoint string) error
	Unbind(endpoint string) error
}

// Connector is implemented by roles that can dial an endpoint.
type Connector interface {
	Connect(endpoint string) error
	Disconnect(endpoint string) error
}

// MultipartSender is implemented by roles that send whole units.
type MultipartSender interface {
	SendMultipart(values ...any) error
	SendMessage(mm *MultipartMessage, flags ...SendFlag) error
}

// Sender is implemented by roles that may also send single frames.
type Sender interface {
	MultipartSender
	Send(v any, flags ...SendFlag) error
}

// Poller is implemented by roles that can check for waiting messages.
type Poller interface {
	HasWaitingMessage(timeout ...time.Duration) bool
}

// MultipartReceiver is implemented by roles that receive whole units.
type MultipartReceiver interface {
	Poller
	ReceiveMultipart(outs ...any) (bool, error)
	GetNextMessages(outs ...any) (bool, error)
}

// Receiver is implemented by roles that may also receive single frames.
type Receiver interface {
	MultipartReceiver
	Receive(out any, flags ...ReceiveFlag) (bool, error)
	GetNextMessage(out any) (bool, error)
}

var (
	_ Binder    = (*Publisher)(nil)
	_ Connector = (*Publisher)(nil)
	_ Sender    = (*Publisher)(nil)

	_ Connector = (*Subscriber)(nil)
	_ Receiver  = (*Subscriber)(nil)

	_ Connector = (*Request)(nil)
	_ Sender    = (*Request)(nil)
	_ Receiver  = (*Request)(nil)

	_ Binder   = (*Reply)(nil)
	_ Sender   = (*Reply)(nil)
	_ Receiver = (*Reply)(nil)

	_ Binder    = (*Push)(nil)
	_ Connector = (*Push)(nil)
	_ Sender    = (*Push)(nil)

	_ Binder    = (*Pull)(nil)
	_ Connector = (*Pull)(nil)
	_ Receiver  = (*Pull)(nil)

	_ Binder    = (*Pair)(nil)
	_ Connector = (*Pair)(nil)
	_ Sender    = (*Pair)(nil)
	_ Receiver  = (*Pair)(nil)

	_ Binder            = (*Router)(nil)
	_ MultipartSender   = (*Router)(nil)
	_ MultipartReceiver = (*Router)(nil)

	_ Binder            = (*Dealer)(nil)
	_ MultipartSender   = (*Dealer)(nil)
	_ MultipartReceiver = (*Dealer)(nil)

	_ Binder = (*XPublisher)(nil)
	_ Sender = (*XPublisher)(nil)

	_ Binder   = (*XSubscriber)(nil)
	_ Receiver = (*XSubscriber)(nil)
)
