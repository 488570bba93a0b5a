// Package broker fans signaling envelopes out to every connection subscribed
// to a room.
package broker

import (
	"context"
	"encoding/json"
)

// Envelope is what travels between connections. Sender is the publishing
// connection's handle so receivers can skip their own messages.
type Envelope struct {
	Sender string          `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

type Subscription interface {
	// Messages is closed after Close.
	Messages() <-chan Envelope
	Close() error
}

type Broker interface {
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
	Publish(ctx context.Context, roomID string, env Envelope) error
}

// Topic is the channel name shared by all connections in a room.
func Topic(roomID string) string {
	return "video_session_" + roomID
}

type options struct {
	buffer int
	onDrop func(roomID string)
}

type Option func(*options)

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithDropHook is called whenever a message is dropped for a slow subscriber.
func WithDropHook(fn func(roomID string)) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{buffer: 64, onDrop: func(string) {}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onDrop == nil {
		o.onDrop = func(string) {}
	}
	return o
}
