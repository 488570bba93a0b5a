package presence

import (
	"context"
	"sync"
	"time"
)

type roomEntry struct {
	handles   map[string]struct{}
	expiresAt time.Time
}

// Memory is a single-process Tracker. Rooms expire ttl after their last
// join or leave, mirroring the Redis key TTL.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*roomEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		rooms: make(map[string]*roomEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *Memory) Join(ctx context.Context, roomID, handle string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(roomID)
	if entry == nil {
		entry = &roomEntry{handles: make(map[string]struct{})}
		m.rooms[roomID] = entry
	}
	entry.handles[handle] = struct{}{}
	entry.expiresAt = m.now().Add(m.ttl)

	return len(entry.handles), nil
}

func (m *Memory) Leave(ctx context.Context, roomID, handle string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(roomID)
	if entry == nil {
		return 0, nil
	}
	delete(entry.handles, handle)
	if len(entry.handles) == 0 {
		delete(m.rooms, roomID)
		return 0, nil
	}
	entry.expiresAt = m.now().Add(m.ttl)

	return len(entry.handles), nil
}

func (m *Memory) Count(ctx context.Context, roomID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(roomID)
	if entry == nil {
		return 0, nil
	}
	return len(entry.handles), nil
}

// live returns the room entry, dropping it first if it has expired.
// Must be called with mu held.
func (m *Memory) live(roomID string) *roomEntry {
	entry, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	if m.ttl > 0 && !m.now().Before(entry.expiresAt) {
		delete(m.rooms, roomID)
		return nil
	}
	return entry
}
