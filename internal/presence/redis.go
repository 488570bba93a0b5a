package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// joinScript adds the handle and refreshes the TTL in one step.
var joinScript = redis.NewScript(`
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return redis.call('SCARD', KEYS[1])
`)

// leaveScript removes the handle and deletes the key once the room is empty.
var leaveScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
local n = redis.call('SCARD', KEYS[1])
if n == 0 then
  redis.call('DEL', KEYS[1])
else
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// Redis shares presence across relay instances. Each room is a set of
// handles under presence:<room_id>.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func Key(roomID string) string {
	return keyPrefix + roomID
}

func (r *Redis) Join(ctx context.Context, roomID, handle string) (int, error) {
	const op = "presence.redis.Join"

	n, err := joinScript.Run(ctx, r.rdb, []string{Key(roomID)}, handle, r.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (r *Redis) Leave(ctx context.Context, roomID, handle string) (int, error) {
	const op = "presence.redis.Leave"

	n, err := leaveScript.Run(ctx, r.rdb, []string{Key(roomID)}, handle, r.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (r *Redis) Count(ctx context.Context, roomID string) (int, error) {
	const op = "presence.redis.Count"

	n, err := r.rdb.SCard(ctx, Key(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}
