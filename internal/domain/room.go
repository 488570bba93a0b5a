package domain

import (
	"strings"

	"github.com/google/uuid"
)

func NewRoomID() string {
	return uuid.NewString()
}

// RoomURL is the link a participant opens in the browser to join roomID.
func RoomURL(frontendURL, roomID string) string {
	return strings.TrimRight(frontendURL, "/") + "/telehealth/join/" + roomID
}

// RoomInfo is a read view combining the session behind a room with its live
// presence count. PresenceKnown is false when the presence store could not be
// reached.
type RoomInfo struct {
	RoomID        string
	Session       *Session
	Participants  int
	PresenceKnown bool
}
