package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

// Redis fans out through Redis pub/sub so connections on different relay
// instances share a room.
type Redis struct {
	rdb  redis.UniversalClient
	log  *slog.Logger
	opts options
}

func NewRedis(rdb redis.UniversalClient, log *slog.Logger, opts ...Option) *Redis {
	return &Redis{
		rdb:  rdb,
		log:  log,
		opts: buildOptions(opts),
	}
}

func (b *Redis) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	const op = "broker.redis.Subscribe"

	ps := b.rdb.Subscribe(ctx, Topic(roomID))
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &redisSub{
		ps:   ps,
		out:  make(chan Envelope, b.opts.buffer),
		done: make(chan struct{}),
	}
	go b.pump(roomID, sub)

	return sub, nil
}

func (b *Redis) Publish(ctx context.Context, roomID string, env Envelope) error {
	const op = "broker.redis.Publish"

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := b.rdb.Publish(ctx, Topic(roomID), payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Redis) pump(roomID string, sub *redisSub) {
	defer close(sub.out)

	log := b.log.With(
		slog.String("op", "broker.redis.pump"),
		slog.String("room_id", roomID),
	)

	ch := sub.ps.Channel()
	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn("undecodable envelope on topic", sl.Err(err))
				continue
			}
			select {
			case sub.out <- env:
			case <-sub.done:
				return
			default:
				b.opts.onDrop(roomID)
				log.Warn("subscriber queue full, message dropped", slog.String("sender", env.Sender))
			}
		}
	}
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan Envelope
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSub) Messages() <-chan Envelope {
	return s.out
}

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
