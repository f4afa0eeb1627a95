package zframe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, tr Transport, opts ...RelayOption) *Broker {
	t.Helper()
	opts = append([]RelayOption{
		WithName("test-broker"),
		WithSocketOptions(WithTransport(tr)),
	}, opts...)
	b := NewBroker(opts...)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBroker_RelaysBothDirections(t *testing.T) {
	tr := newMemTransport()
	b := newTestBroker(t, tr)
	require.NoError(t, b.Setup("inproc://front", "inproc://back"))
	assert.True(t, b.Running())
	assert.Equal(t, RelayEndpoints{Kind: RelayKindBroker, Frontend: "inproc://front", Backend: "inproc://back"}, b.Endpoints())

	client := newSocket(PatternDealer, []SocketOption{WithTransport(tr), WithIdentity("client-1")})
	require.NoError(t, client.connect("inproc://front"))
	worker := newSocket(PatternDealer, []SocketOption{WithTransport(tr)})
	require.NoError(t, worker.connect("inproc://back"))

	require.NoError(t, client.sendMultipart("hello", int32(7)))

	var request MultipartMessage
	require.Eventually(t, func() bool {
		ok, err := worker.receiveMultipart(&request)
		return err == nil && ok
	}, time.Second, time.Millisecond)

	seven, err := Encode(int32(7))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("client-1"), []byte("hello"), seven}, request.Frames())

	// reply addressed by the identity frame the router added
	require.NoError(t, worker.sendMultipart(request.Message(0), "world"))

	var reply string
	require.Eventually(t, func() bool {
		ok, err := client.receiveMultipart(&reply)
		return err == nil && ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, "world", reply)

	// counters are updated right after each send
	require.Eventually(t, func() bool {
		s := b.Metrics().Snapshot()
		return s.Backward.Units == 1 && s.Iterations > 0
	}, time.Second, time.Millisecond)

	snap := b.Metrics().Snapshot()
	assert.Equal(t, "test-broker", snap.Relay)
	assert.Equal(t, 1, snap.Forward.Units)
	assert.Equal(t, 3, snap.Forward.Frames)
	assert.Equal(t, int64(len("client-1")+len("world")), snap.Backward.Bytes)
}

func TestBroker_PreservesUnitOrder(t *testing.T) {
	tr := newMemTransport()
	b := newTestBroker(t, tr)
	require.NoError(t, b.Setup("inproc://front", "inproc://back"))

	client := newSocket(PatternDealer, []SocketOption{WithTransport(tr), WithIdentity("c")})
	require.NoError(t, client.connect("inproc://front"))
	worker := newSocket(PatternDealer, []SocketOption{WithTransport(tr)})
	require.NoError(t, worker.connect("inproc://back"))

	for i := int32(0); i < 50; i++ {
		require.NoError(t, client.sendMultipart("n", i))
	}

	var got []int32
	require.Eventually(t, func() bool {
		for {
			var id, tag string
			var n int32
			ok, _ := worker.receiveMultipart(&id, &tag, &n)
			if !ok {
				break
			}
			got = append(got, n)
		}
		return len(got) == 50
	}, 2*time.Second, time.Millisecond)

	for i, n := range got {
		assert.Equal(t, int32(i), n)
	}
}

func TestBroker_Setup(t *testing.T) {
	t.Run("second setup is refused", func(t *testing.T) {
		tr := newMemTransport()
		b := newTestBroker(t, tr)
		require.NoError(t, b.Setup("inproc://a", "inproc://b"))

		err := b.Setup("inproc://c", "inproc://d")
		assert.ErrorIs(t, err, ErrAlreadyRunning)

		var relayErr *RelayError
		require.True(t, errors.As(err, &relayErr))
		assert.Equal(t, "test-broker", relayErr.Relay)
		assert.Equal(t, "setup", relayErr.Op)
	})

	t.Run("bind failure starts no worker", func(t *testing.T) {
		tr := newMemTransport()
		first := newTestBroker(t, tr)
		require.NoError(t, first.Setup("inproc://a", "inproc://b"))

		second := newTestBroker(t, tr, WithName("second"))
		err := second.Setup("inproc://x", "inproc://b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bind dealer")
		assert.False(t, second.Running())

		// the router was released, so a retry can reuse its address
		require.NoError(t, second.Setup("inproc://x", "inproc://y"))
		assert.True(t, second.Running())
	})

	t.Run("setup after shutdown restarts", func(t *testing.T) {
		tr := newMemTransport()
		b := newTestBroker(t, tr)
		require.NoError(t, b.Setup("inproc://front", "inproc://back"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, b.Shutdown(ctx))
		require.False(t, b.Running())

		require.NoError(t, b.Setup("inproc://front", "inproc://back"))
		assert.True(t, b.Running())

		client := newSocket(PatternDealer, []SocketOption{WithTransport(tr), WithIdentity("c")})
		require.NoError(t, client.connect("inproc://front"))
		worker := newSocket(PatternDealer, []SocketOption{WithTransport(tr)})
		require.NoError(t, worker.connect("inproc://back"))

		require.NoError(t, client.sendMultipart("again"))
		var id, body string
		require.Eventually(t, func() bool {
			ok, err := worker.receiveMultipart(&id, &body)
			return err == nil && ok
		}, time.Second, time.Millisecond)
		assert.Equal(t, "again", body)
	})
}

func TestBroker_WithoutWorker(t *testing.T) {
	tr := newMemTransport()
	b := newTestBroker(t, tr, WithShutdownTimeout(time.Second))
	require.NoError(t, b.Setup("inproc://front", "inproc://back"))

	client := newSocket(PatternDealer, []SocketOption{WithTransport(tr), WithIdentity("c")})
	require.NoError(t, client.connect("inproc://front"))
	require.NoError(t, client.sendMultipart("nobody home"))

	require.Eventually(t, func() bool {
		return b.Metrics().Snapshot().Forward.SendFailures == 1
	}, time.Second, time.Millisecond)
	assert.True(t, b.Running())
	assert.Equal(t, 0, b.Metrics().Snapshot().Forward.Units)

	require.NoError(t, b.Close())
	assert.False(t, b.Running())
}

func TestBroker_Shutdown(t *testing.T) {
	tr := newMemTransport()
	b := newTestBroker(t, tr, WithPollInterval(time.Millisecond))
	require.NoError(t, b.Setup("inproc://front", "inproc://back"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
	assert.False(t, b.Running())

	// sockets stay usable until Close
	assert.True(t, b.Router().IsConnected())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestBroker_CloseWithoutSetup(t *testing.T) {
	b := NewBroker(WithSocketOptions(WithTransport(newMemTransport())))
	assert.NoError(t, b.Shutdown(context.Background()))
	assert.NoError(t, b.Close())
	assert.False(t, b.Running())
	assert.NotEmpty(t, b.Name())
}
