package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConnState string

const (
	ConnStateConnecting ConnState = "connecting"
	ConnStateOpen       ConnState = "open"
	ConnStateClosed     ConnState = "closed"
)

// Participant is one signaling connection inside a room. A user with two tabs
// open is two participants with distinct handles.
type Participant struct {
	Handle   string
	RoomID   string
	Identity Identity
	JoinedAt time.Time
}

func NewParticipant(roomID string, who Identity) Participant {
	return Participant{
		Handle:   uuid.NewString(),
		RoomID:   roomID,
		Identity: who,
		JoinedAt: time.Now().UTC(),
	}
}
