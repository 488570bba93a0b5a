package broker

import (
	"context"
	"log/slog"
	"sync"
)

// Memory delivers within a single process. Publishing never blocks: a
// subscriber whose queue is full misses the message.
type Memory struct {
	log  *slog.Logger
	opts options

	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
}

func NewMemory(log *slog.Logger, opts ...Option) *Memory {
	return &Memory{
		log:    log,
		opts:   buildOptions(opts),
		topics: make(map[string]map[*memorySub]struct{}),
	}
}

type memorySub struct {
	broker *Memory
	roomID string
	ch     chan Envelope
	once   sync.Once
}

func (s *memorySub) Messages() <-chan Envelope {
	return s.ch
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.topics[s.roomID]
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.topics, s.roomID)
		}
		close(s.ch)
	})
	return nil
}

func (b *Memory) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySub{
		broker: b,
		roomID: roomID,
		ch:     make(chan Envelope, b.opts.buffer),
	}

	b.mu.Lock()
	subs, ok := b.topics[roomID]
	if !ok {
		subs = make(map[*memorySub]struct{})
		b.topics[roomID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

func (b *Memory) Publish(ctx context.Context, roomID string, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Sends happen under the read lock so Close cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[roomID] {
		select {
		case sub.ch <- env:
		default:
			b.opts.onDrop(roomID)
			b.log.Warn("subscriber queue full, message dropped",
				slog.String("op", "broker.memory.Publish"),
				slog.String("room_id", roomID),
				slog.String("sender", env.Sender),
			)
		}
	}
	return nil
}
