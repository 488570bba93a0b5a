// Package presence keeps the set of live connection handles per room.
package presence

import "context"

// Tracker counts connections per room. A handle is counted once no matter how
// many times it joins. Callers treat errors as "presence unknown" and carry on.
type Tracker interface {
	Join(ctx context.Context, roomID, handle string) (int, error)
	Leave(ctx context.Context, roomID, handle string) (int, error)
	Count(ctx context.Context, roomID string) (int, error)
}
