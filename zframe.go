// Package zframe provides typed ZeroMQ sockets on top of go-zeromq/zmq4.
//
// # Architecture
//
// Values travel as frames. A converter turns a Go value into one frame and
// back:
//   - []byte, string and *Message pass through unchanged
//   - fixed-layout values (sized integers, floats, arrays and structs of
//     them) are copied in native byte order
//   - types implementing FrameMarshaler or encoding.BinaryMarshaler encode
//     themselves
//   - With and Into bind an explicit Converter for any other type
//
// Each socket role (Publisher, Subscriber, Request, Reply, Push, Pull, Pair,
// Router, Dealer, XPublisher, XSubscriber) only exposes the operations legal
// for its pattern. Broker and XPubSubProxy relay whole multipart units in a
// background goroutine.
//
// # Quick Start
//
// Publisher:
//
//	pub := zframe.NewPublisher()
//	defer pub.Close()
//	if err := pub.Bind("tcp://*:6000"); err != nil {
//	    log.Fatal(err)
//	}
//	pub.SendMultipart("weather", int32(21))
//
// Subscriber:
//
//	sub := zframe.NewSubscriber()
//	defer sub.Close()
//	sub.AddFilter("weather")
//	if err := sub.Connect("tcp://localhost:6000"); err != nil {
//	    log.Fatal(err)
//	}
//	var topic string
//	var temp int32
//	if sub.HasWaitingMessage(time.Second) {
//	    sub.GetNextMessages(&topic, &temp)
//	}
//
// Broker:
//
//	b := zframe.NewBroker(zframe.WithName("jobs"))
//	if err := b.Setup("tcp://*:5559", "tcp://*:5560"); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
package zframe

// Version is the current library version
const Version = "1.0.0"
