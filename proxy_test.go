package zframe

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPubSubProxy_ForwardsPublications(t *testing.T) {
	tr := newMemTransport()
	p := NewXPubSubProxy(WithName("test-proxy"), WithSocketOptions(WithTransport(tr)))
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Setup("inproc://xpub", "inproc://xsub"))
	assert.Equal(t, RelayEndpoints{Kind: RelayKindProxy, Frontend: "inproc://xsub", Backend: "inproc://xpub"}, p.Endpoints())

	pub := NewPublisher(WithTransport(tr))
	require.NoError(t, pub.Connect("inproc://xsub"))

	sub := NewSubscriber(WithTransport(tr))
	require.NoError(t, sub.AddFilter("video"))
	require.NoError(t, sub.Connect("inproc://xpub"))

	frame := bytes.Repeat([]byte{0xAB}, 1280*720)
	require.NoError(t, pub.SendMultipart("audio", []byte{1}))
	require.NoError(t, pub.SendMultipart("video", frame))

	var topic string
	var payload []byte
	require.Eventually(t, func() bool {
		if !sub.HasWaitingMessage() {
			return false
		}
		ok, err := sub.GetNextMessages(&topic, &payload)
		return err == nil && ok
	}, time.Second, time.Millisecond)

	assert.Equal(t, "video", topic)
	assert.Equal(t, frame, payload)
	assert.False(t, sub.HasWaitingMessage(), "audio must be filtered out")

	require.Eventually(t, func() bool {
		return p.Metrics().Snapshot().Forward.Units == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, p.Metrics().Snapshot().Backward.Units)
}

func TestXPubSubProxy_Accessors(t *testing.T) {
	tr := newMemTransport()
	m := NewRelayMetrics("shared", 10)
	p := NewXPubSubProxy(WithMetrics(m), WithSocketOptions(WithTransport(tr)))
	defer p.Close()

	assert.Same(t, m, p.Metrics())
	assert.Equal(t, PatternXPub, p.XPublisher().Pattern())
	assert.Equal(t, PatternXSub, p.XSubscriber().Pattern())
	assert.False(t, p.Running())

	require.NoError(t, p.Setup("inproc://a", "inproc://b"))
	assert.True(t, p.Running())
	assert.ErrorIs(t, p.Setup("inproc://a", "inproc://b"), ErrAlreadyRunning)
}

func TestXSubscriber_NeedsSubscription(t *testing.T) {
	tr := newMemTransport()
	xsub := NewXSubscriber(WithTransport(tr))
	defer xsub.Close()
	require.NoError(t, xsub.Bind("inproc://upstream"))

	pub := NewPublisher(WithTransport(tr))
	defer pub.Close()
	require.NoError(t, pub.Connect("inproc://upstream"))

	require.NoError(t, pub.SendMultipart("video", []byte{1}))
	assert.False(t, xsub.HasWaitingMessage())

	require.NoError(t, xsub.raw.SetOption(OptionSubscribe, "vid"))
	require.NoError(t, pub.SendMultipart("video", []byte{2}))
	assert.True(t, xsub.HasWaitingMessage())
}

func TestXPubSubProxy_SetupRecovery(t *testing.T) {
	t.Run("failed bind releases the xpub", func(t *testing.T) {
		tr := newMemTransport()
		taken := NewPull(WithTransport(tr))
		defer taken.Close()
		require.NoError(t, taken.Bind("inproc://taken"))

		p := NewXPubSubProxy(WithSocketOptions(WithTransport(tr)))
		defer p.Close()
		err := p.Setup("inproc://out", "inproc://taken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bind xsub")
		assert.False(t, p.Running())

		require.NoError(t, p.Setup("inproc://out", "inproc://in"))
		assert.True(t, p.Running())
	})

	t.Run("setup after shutdown restarts", func(t *testing.T) {
		tr := newMemTransport()
		p := NewXPubSubProxy(WithSocketOptions(WithTransport(tr)))
		defer p.Close()
		require.NoError(t, p.Setup("inproc://out", "inproc://in"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, p.Shutdown(ctx))
		require.NoError(t, p.Setup("inproc://out", "inproc://in"))
		assert.True(t, p.Running())
		assert.Equal(t, RelayEndpoints{Kind: RelayKindProxy, Frontend: "inproc://in", Backend: "inproc://out"}, p.Endpoints())
	})
}
