package domain

import (
	"encoding/json"
	"errors"
)

// SignalKind is the closed set of frame types the relay understands.
type SignalKind string

const (
	SignalJoin         SignalKind = "join"
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice_candidate"
	SignalChat         SignalKind = "chat"

	// Synthesized by the server, never accepted from clients.
	SignalParticipantJoined SignalKind = "participant_joined"
	SignalParticipantLeft   SignalKind = "participant_left"

	SignalUnknown SignalKind = "unknown"
)

var (
	ErrMalformedSignal = errors.New("malformed signal frame")
	ErrMissingType     = errors.New("signal frame has no type")
)

func ParseSignalKind(raw string) SignalKind {
	switch k := SignalKind(raw); k {
	case SignalJoin, SignalOffer, SignalAnswer, SignalICECandidate, SignalChat:
		return k
	}
	return SignalUnknown
}

// SignalMessage is an inbound frame after envelope validation. Raw keeps the
// original bytes so the relay can forward them untouched.
type SignalMessage struct {
	Kind SignalKind
	Type string
	Raw  []byte
}

// DecodeSignal enforces the envelope shape: a JSON object with a non-empty
// string "type". Everything else in the frame is left uninterpreted.
func DecodeSignal(frame []byte) (SignalMessage, error) {
	var env struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return SignalMessage{}, errors.Join(ErrMalformedSignal, err)
	}
	if env.Type == nil || *env.Type == "" {
		return SignalMessage{}, ErrMissingType
	}
	return SignalMessage{
		Kind: ParseSignalKind(*env.Type),
		Type: *env.Type,
		Raw:  frame,
	}, nil
}

// ParticipantEvent is the payload of participant_joined / participant_left.
type ParticipantEvent struct {
	Type          SignalKind `json:"type"`
	ParticipantID string     `json:"participant_id"`
	UserID        string     `json:"user_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	Role          Role       `json:"role,omitempty"`
}

func NewParticipantEvent(kind SignalKind, p Participant) ParticipantEvent {
	userID := "anonymous"
	if !p.Identity.Anonymous() {
		userID = p.Identity.UserID.String()
	}
	return ParticipantEvent{
		Type:          kind,
		ParticipantID: p.Handle,
		UserID:        userID,
		DisplayName:   p.Identity.DisplayName,
		Role:          p.Identity.Role,
	}
}
