package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
)

func setupTestRegistry(t *testing.T) (*Registry, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics(nil)
	return NewRegistry(logging.NewNopLogger(), metrics), metrics
}

// nextQueued pops the next queued frame of a viewer without a connection.
func nextQueued(t *testing.T, v *Viewer) Message {
	t.Helper()
	select {
	case data, ok := <-v.send:
		require.True(t, ok, "viewer queue closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("no message queued")
		return Message{}
	}
}

func TestRegistryBroadcastReachesEveryViewer(t *testing.T) {
	registry, metrics := setupTestRegistry(t)

	first := NewViewer(nil, 4)
	second := NewViewer(nil, 4)
	require.NoError(t, registry.Register(first))
	require.NoError(t, registry.Register(second))
	assert.Equal(t, 2, registry.Len())

	delivered := registry.Broadcast(ContentMessage("<p>hi</p>"))
	assert.Equal(t, 2, delivered)

	for _, v := range []*Viewer{first, second} {
		msg := nextQueued(t, v)
		assert.Equal(t, MessageContent, msg.Type)
		assert.Equal(t, "<p>hi</p>", msg.Content)
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MessagesBroadcast.WithLabelValues(MessageContent)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ViewersConnected))
}

func TestRegistryPreservesPerViewerOrder(t *testing.T) {
	registry, _ := setupTestRegistry(t)
	v := NewViewer(nil, 8)
	require.NoError(t, registry.Register(v))

	registry.Broadcast(TitleMessage("doc.md"))
	registry.Broadcast(ContentMessage("one"))
	registry.Broadcast(ContentMessage("two"))

	assert.Equal(t, MessageTitle, nextQueued(t, v).Type)
	assert.Equal(t, "one", nextQueued(t, v).Content)
	assert.Equal(t, "two", nextQueued(t, v).Content)
}

func TestRegistryUnregister(t *testing.T) {
	registry, metrics := setupTestRegistry(t)
	v := NewViewer(nil, 4)
	require.NoError(t, registry.Register(v))

	registry.Unregister(v)
	registry.Unregister(v)

	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, registry.Broadcast(ContentMessage("x")))
	assert.False(t, v.Send(ContentMessage("x")), "closed viewer refuses messages")
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ViewersConnected))

	_, ok := <-v.send
	assert.False(t, ok)
}

func TestRegistryDropsSlowViewer(t *testing.T) {
	registry, metrics := setupTestRegistry(t)
	slow := NewViewer(nil, 1)
	fast := NewViewer(nil, 8)
	require.NoError(t, registry.Register(slow))
	require.NoError(t, registry.Register(fast))

	assert.Equal(t, 2, registry.Broadcast(ContentMessage("one")))
	assert.Equal(t, 1, registry.Broadcast(ContentMessage("two")))

	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SlowViewersDropped))
	assert.Equal(t, "one", nextQueued(t, fast).Content)
	assert.Equal(t, "two", nextQueued(t, fast).Content)
}

func TestRegistryBroadcastSkipsClosedViewer(t *testing.T) {
	registry, metrics := setupTestRegistry(t)
	closing := NewViewer(nil, 4)
	open := NewViewer(nil, 4)
	require.NoError(t, registry.Register(closing))
	require.NoError(t, registry.Register(open))

	// Closed while still registered, as when a broadcast races CloseAll
	closing.closeSend()

	assert.Equal(t, 1, registry.Broadcast(ContentMessage("late")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SlowViewersDropped))
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, "late", nextQueued(t, open).Content)
	assert.False(t, closing.Send(ContentMessage("after")))
}

func TestRegistryCloseAll(t *testing.T) {
	registry, _ := setupTestRegistry(t)
	viewers := []*Viewer{NewViewer(nil, 4), NewViewer(nil, 4)}
	for _, v := range viewers {
		require.NoError(t, registry.Register(v))
	}
	registry.Broadcast(KillMessage())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, registry.CloseAll(ctx))

	assert.True(t, registry.Closed())
	assert.Equal(t, 0, registry.Len())
	for _, v := range viewers {
		// Queued kill survives the close
		assert.Equal(t, MessageKill, nextQueued(t, v).Type)
	}

	assert.Error(t, registry.Register(NewViewer(nil, 1)))
	assert.NoError(t, registry.CloseAll(ctx), "closing twice is harmless")
}

func TestRegistryCloseAllWithoutViewers(t *testing.T) {
	registry, _ := setupTestRegistry(t)
	assert.NoError(t, registry.CloseAll(context.Background()))
}

func TestViewerIdentity(t *testing.T) {
	a := NewViewer(nil, 0)
	b := NewViewer(nil, 0)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.WithinDuration(t, time.Now(), a.ConnectedAt(), time.Second)
	assert.Equal(t, DefaultSendBuffer, cap(a.send))
}

func TestMessageEncode(t *testing.T) {
	data, err := KillMessage().Encode()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "kill", raw["type"])
	assert.Contains(t, raw, "timestamp")
	assert.NotContains(t, raw, "content")
}
