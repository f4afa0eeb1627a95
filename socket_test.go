package zframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocket_PubSub(t *testing.T) {
	tr := newMemTransport()
	pub := NewPublisher(WithTransport(tr))
	defer pub.Close()
	require.NoError(t, pub.Bind("inproc://weather"))

	sub := NewSubscriber(WithTransport(tr))
	defer sub.Close()
	require.NoError(t, sub.Connect("inproc://weather"))
	assert.Equal(t, []string{""}, sub.Filters())

	t.Run("multipart round trip", func(t *testing.T) {
		require.NoError(t, pub.SendMultipart("weather", int32(21), []float32{1.5, 2.5}))

		var topic string
		var temp int32
		var samples []float32
		require.True(t, sub.HasWaitingMessage(time.Second))
		ok, err := sub.GetNextMessages(&topic, &temp, &samples)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "weather", topic)
		assert.Equal(t, int32(21), temp)
		assert.Equal(t, []float32{1.5, 2.5}, samples)
	})

	t.Run("nothing waiting", func(t *testing.T) {
		assert.False(t, sub.HasWaitingMessage())
		ok, err := sub.GetNextMessage(new(string))
		assert.NoError(t, err)
		assert.False(t, ok)

		ok, err = sub.Receive(new(string))
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("prebuilt unit", func(t *testing.T) {
		mm, err := NewMultipartMessage("space", int32(1))
		require.NoError(t, err)
		require.NoError(t, pub.Send(mm))

		var got MultipartMessage
		ok, err := sub.ReceiveMultipart(&got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, mm.Frames(), got.Frames())
	})
}

func TestSubscriber_Filters(t *testing.T) {
	tr := newMemTransport()
	pub := NewPublisher(WithTransport(tr))
	require.NoError(t, pub.Bind("inproc://av"))

	sub := NewSubscriber(WithTransport(tr))
	require.NoError(t, sub.AddFilter("video"))
	require.NoError(t, sub.Connect("inproc://av"))
	assert.Equal(t, []string{"video"}, sub.Filters(), "connect must not add the catch-all filter")

	require.NoError(t, pub.SendMultipart("audio", []byte{1}))
	assert.False(t, sub.HasWaitingMessage())

	require.NoError(t, pub.SendMultipart("video/hd", []byte{2}))
	require.True(t, sub.HasWaitingMessage())
	var topic string
	var payload []byte
	ok, err := sub.GetNextMessages(&topic, &payload)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "video/hd", topic)

	t.Run("remove unknown filter", func(t *testing.T) {
		assert.False(t, sub.RemoveFilter("audio"))
	})

	t.Run("remove known filter", func(t *testing.T) {
		assert.True(t, sub.RemoveFilter("video"))
		assert.Empty(t, sub.Filters())

		require.NoError(t, pub.SendMultipart("video", []byte{3}))
		assert.False(t, sub.HasWaitingMessage())
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, sub.AddFilter("a"))
		require.NoError(t, sub.AddFilter("b"))
		assert.Equal(t, []string{"a", "b"}, sub.Filters())

		sub.RemoveAllFilters()
		assert.Empty(t, sub.Filters())
	})
}

func TestSocket_PushPull(t *testing.T) {
	tr := newMemTransport()
	pull := NewPull(WithTransport(tr))
	require.NoError(t, pull.Bind("inproc://pipe"))
	push := NewPush(WithTransport(tr))
	require.NoError(t, push.Connect("inproc://pipe"))

	t.Run("more flag joins frames into one unit", func(t *testing.T) {
		require.NoError(t, push.Send("job", SendFlagMore))
		require.NoError(t, push.Send(int32(7)))

		var name string
		var n int32
		ok, err := pull.ReceiveMultipart(&name, &n)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "job", name)
		assert.Equal(t, int32(7), n)
	})

	t.Run("single frames arrive frame by frame", func(t *testing.T) {
		require.NoError(t, push.SendMultipart("a", "b"))

		var a, b string
		ok, err := pull.Receive(&a)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = pull.Receive(&b)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", a)
		assert.Equal(t, "b", b)
	})

	t.Run("decode failure is not an error", func(t *testing.T) {
		captureLogs(t)
		require.NoError(t, push.Send([]byte{1, 2}))
		out := int64(5)
		ok, err := pull.Receive(&out)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(5), out)
	})

	t.Run("extra frames are ignored", func(t *testing.T) {
		captureLogs(t)
		require.NoError(t, push.SendMultipart("x", "y", "z"))
		var x string
		ok, err := pull.ReceiveMultipart(&x, ReceiveFlagNonblocking)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x", x)
		assert.False(t, pull.HasWaitingMessage())
	})

	t.Run("send errors", func(t *testing.T) {
		captureLogs(t)
		assert.ErrorIs(t, push.Send(5), ErrUnsupportedType)
		assert.ErrorIs(t, push.SendMessage(&MultipartMessage{}), ErrEmptyMessage)
		assert.ErrorIs(t, push.SendMultipart("ok", 5), ErrUnsupportedType)
	})
}

func TestSocket_RequestReply(t *testing.T) {
	tr := newMemTransport()
	rep := NewReply(WithTransport(tr))
	require.NoError(t, rep.Bind("inproc://rr"))
	req := NewRequest(WithTransport(tr))
	require.NoError(t, req.Connect("inproc://rr"))

	require.NoError(t, req.Send("ping"))

	var s string
	ok, err := rep.Receive(&s, ReceiveFlagNone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ping", s)

	require.NoError(t, rep.Send("pong"))
	ok, err = req.Receive(&s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pong", s)
}

func TestSocket_Pair(t *testing.T) {
	tr := newMemTransport()
	a := NewPair(WithTransport(tr))
	b := NewPair(WithTransport(tr))
	require.NoError(t, a.Bind("inproc://pair"))
	require.NoError(t, b.Connect("inproc://pair"))

	require.NoError(t, a.SendMultipart(record{P: 1, Q: 2}))
	var r record
	ok, err := b.ReceiveMultipart(&r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{P: 1, Q: 2}, r)

	require.NoError(t, b.Disconnect("inproc://pair"))
	assert.False(t, b.IsConnected())
	assert.ErrorIs(t, b.Send("late"), ErrNotConnected)
}

func TestSocket_NonblockingSendWithoutPeer(t *testing.T) {
	tr := newMemTransport()
	push := NewPush(WithTransport(tr))
	defer push.Close()
	require.NoError(t, push.Bind("inproc://lonely"))

	assert.ErrorIs(t, push.Send("job"), ErrWouldBlock)
	assert.ErrorIs(t, push.SendMultipart("job", int32(1)), ErrWouldBlock)

	pull := NewPull(WithTransport(tr))
	defer pull.Close()
	require.NoError(t, pull.Connect("inproc://lonely"))
	require.NoError(t, push.Send("job"))

	var got string
	ok, err := pull.Receive(&got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job", got)
}

func TestSocket_Options(t *testing.T) {
	tr := newMemTransport()

	t.Run("identity", func(t *testing.T) {
		s := NewDealer(WithTransport(tr), WithIdentity("worker-1"))
		assert.Equal(t, "worker-1", s.Identity())

		r := NewDealer(WithTransport(tr), WithRandomIdentity())
		assert.Len(t, r.Identity(), 36)
	})

	t.Run("high water marks are independent", func(t *testing.T) {
		s := NewPull(WithTransport(tr), WithHighWaterMarks(10, 0))
		assert.Equal(t, 10, s.SendHighWaterMark())
		assert.Equal(t, DefaultHighWaterMark, s.ReceiveHighWaterMark())

		require.NoError(t, s.SetReceiveHighWaterMark(20))
		assert.Equal(t, 10, s.SendHighWaterMark())
		assert.Equal(t, 20, s.ReceiveHighWaterMark())
	})

	t.Run("deprecated combined setter", func(t *testing.T) {
		s := NewPull(WithTransport(tr))
		require.NoError(t, s.SetHighWaterMark(5))
		assert.Equal(t, 5, s.SendHighWaterMark())
		assert.Equal(t, 5, s.ReceiveHighWaterMark())
		assert.Equal(t, 5, s.HighWaterMark())
	})

	t.Run("pattern and raw", func(t *testing.T) {
		s := NewXSubscriber(WithTransport(tr))
		assert.Equal(t, PatternXSub, s.Pattern())
		assert.Equal(t, PatternXSub, s.Raw().Pattern())
		assert.False(t, s.IsConnected())
	})
}

func TestRoles_Capabilities(t *testing.T) {
	tr := newMemTransport()
	opt := WithTransport(tr)

	tests := []struct {
		name      string
		role      any
		bind      bool
		connect   bool
		send      bool
		multiSend bool
		receive   bool
		multiRecv bool
		poll      bool
	}{
		{"publisher", NewPublisher(opt), true, true, true, true, false, false, false},
		{"subscriber", NewSubscriber(opt), false, true, false, false, true, true, true},
		{"request", NewRequest(opt), false, true, true, true, true, true, true},
		{"reply", NewReply(opt), true, false, true, true, true, true, true},
		{"push", NewPush(opt), true, true, true, true, false, false, false},
		{"pull", NewPull(opt), true, true, false, false, true, true, true},
		{"pair", NewPair(opt), true, true, true, true, true, true, true},
		{"router", NewRouter(opt), true, false, false, true, false, true, true},
		{"dealer", NewDealer(opt), true, false, false, true, false, true, true},
		{"xpublisher", NewXPublisher(opt), true, false, true, true, false, false, false},
		{"xsubscriber", NewXSubscriber(opt), true, false, false, false, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bind := tt.role.(Binder)
			_, connect := tt.role.(Connector)
			_, send := tt.role.(Sender)
			_, multiSend := tt.role.(MultipartSender)
			_, receive := tt.role.(Receiver)
			_, multiRecv := tt.role.(MultipartReceiver)
			_, poll := tt.role.(Poller)

			assert.Equal(t, tt.bind, bind, "bind")
			assert.Equal(t, tt.connect, connect, "connect")
			assert.Equal(t, tt.send, send, "send")
			assert.Equal(t, tt.multiSend, multiSend, "multipart send")
			assert.Equal(t, tt.receive, receive, "receive")
			assert.Equal(t, tt.multiRecv, multiRecv, "multipart receive")
			assert.Equal(t, tt.poll, poll, "poll")
		})
	}
}
