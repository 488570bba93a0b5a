package broker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/handlers/slogdiscard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokers(t *testing.T, opts ...Option) map[string]Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := slogdiscard.NewDiscardLogger()
	return map[string]Broker{
		"memory": NewMemory(log, opts...),
		"redis":  NewRedis(rdb, log, opts...),
	}
}

func receive(t *testing.T, sub Subscription) Envelope {
	t.Helper()

	select {
	case env, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return Envelope{}
}

func assertNothing(t *testing.T, sub Subscription) {
	t.Helper()

	select {
	case env := <-sub.Messages():
		t.Fatalf("unexpected envelope from %q", env.Sender)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_FanOutWithinRoom(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a, err := b.Subscribe(ctx, "room-1")
			require.NoError(t, err)
			defer a.Close()
			c, err := b.Subscribe(ctx, "room-1")
			require.NoError(t, err)
			defer c.Close()
			other, err := b.Subscribe(ctx, "room-2")
			require.NoError(t, err)
			defer other.Close()

			env := Envelope{Sender: "a", Data: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)}
			require.NoError(t, b.Publish(ctx, "room-1", env))

			for _, sub := range []Subscription{a, c} {
				got := receive(t, sub)
				assert.Equal(t, "a", got.Sender)
				assert.JSONEq(t, string(env.Data), string(got.Data))
			}
			assertNothing(t, other)
		})
	}
}

func TestBroker_PerSenderOrder(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub, err := b.Subscribe(ctx, "room-1")
			require.NoError(t, err)
			defer sub.Close()

			for i := 0; i < 10; i++ {
				data, _ := json.Marshal(map[string]any{"type": "ice_candidate", "seq": i})
				require.NoError(t, b.Publish(ctx, "room-1", Envelope{Sender: "a", Data: data}))
			}

			for i := 0; i < 10; i++ {
				var msg struct {
					Seq int `json:"seq"`
				}
				require.NoError(t, json.Unmarshal(receive(t, sub).Data, &msg))
				assert.Equal(t, i, msg.Seq)
			}
		})
	}
}

func TestBroker_CloseStopsDelivery(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub, err := b.Subscribe(ctx, "room-1")
			require.NoError(t, err)
			require.NoError(t, sub.Close())
			require.NoError(t, sub.Close())

			require.NoError(t, b.Publish(ctx, "room-1", Envelope{Sender: "a", Data: json.RawMessage(`{}`)}))

			select {
			case _, ok := <-sub.Messages():
				assert.False(t, ok)
			case <-time.After(2 * time.Second):
				t.Fatal("messages channel not closed")
			}
		})
	}
}

func TestMemory_SlowSubscriberDrops(t *testing.T) {
	var dropped atomic.Int32
	b := NewMemory(slogdiscard.NewDiscardLogger(),
		WithBuffer(1),
		WithDropHook(func(string) { dropped.Add(1) }),
	)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "room-1", Envelope{Sender: "a", Data: json.RawMessage(`{}`)}))
	}

	assert.Equal(t, int32(2), dropped.Load())
	receive(t, sub)
	assertNothing(t, sub)
}

func TestRedis_SubscribeFailsWhenUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedis(rdb, slogdiscard.NewDiscardLogger()).Subscribe(ctx, "room-1")
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "video_session_abc", Topic("abc"))
}
