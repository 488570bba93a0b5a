package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in-progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

const DefaultSessionDuration = 30

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusInProgress, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Transition names an operation that mutates session status.
type Transition string

const (
	TransitionStart  Transition = "start"
	TransitionEnd    Transition = "end"
	TransitionCancel Transition = "cancel"
)

var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError is returned when an operation's precondition does not hold
// for the session's current status.
type TransitionError struct {
	From SessionStatus
	To   SessionStatus
	Via  Transition
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s → %s (via %s)", e.From, e.To, e.Via)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Target is the status an operation moves a session into when it succeeds.
func (t Transition) Target() SessionStatus {
	switch t {
	case TransitionStart:
		return SessionStatusInProgress
	case TransitionEnd:
		return SessionStatusCompleted
	case TransitionCancel:
		return SessionStatusCancelled
	}
	return ""
}

// Allowed reports whether t may be applied to a session in status from.
func (t Transition) Allowed(from SessionStatus) bool {
	switch t {
	case TransitionStart:
		return from == SessionStatusScheduled
	case TransitionEnd:
		return from == SessionStatusInProgress
	case TransitionCancel:
		return from.Valid() && !from.Terminal()
	}
	return false
}

// Session is the persisted record of a telehealth encounter.
type Session struct {
	ID              uuid.UUID
	Title           string
	Description     string
	HostID          uuid.UUID
	CounterpartID   *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          SessionStatus
	IsEmergency     bool
	RoomID          string
	SessionURL      string
	Notes           string
	HasRecording    bool
	HasTranscript   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
}

func NewSession(title string, host uuid.UUID, counterpart *uuid.UUID, scheduledAt time.Time, duration int) *Session {
	now := time.Now().UTC()
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &Session{
		ID:              uuid.New(),
		Title:           title,
		HostID:          host,
		CounterpartID:   counterpart,
		ScheduledAt:     scheduledAt.UTC(),
		DurationMinutes: duration,
		Status:          SessionStatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Apply checks t against the session's current status and returns the
// resulting status change. The session itself is not modified.
func (s *Session) Apply(t Transition, now time.Time) (StatusChange, error) {
	if !t.Allowed(s.Status) {
		return StatusChange{}, &TransitionError{From: s.Status, To: t.Target(), Via: t}
	}

	change := StatusChange{
		From:      s.Status,
		To:        t.Target(),
		UpdatedAt: now,
	}
	switch t {
	case TransitionStart:
		change.StartedAt = &now
	case TransitionEnd:
		change.EndedAt = &now
	}
	return change, nil
}

// StatusChange is the conditional update a transition produces: it must only
// be written if the stored status still equals From.
type StatusChange struct {
	From      SessionStatus
	To        SessionStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	UpdatedAt time.Time
}

// HasParticipant reports whether id is the host or the counterpart.
func (s *Session) HasParticipant(id uuid.UUID) bool {
	if s.HostID == id {
		return true
	}
	return s.CounterpartID != nil && *s.CounterpartID == id
}

func (s *Session) IsUpcoming(now time.Time) bool {
	return s.ScheduledAt.After(now) && s.Status == SessionStatusScheduled
}

func (s *Session) IsPast(now time.Time) bool {
	return s.ScheduledAt.Before(now)
}

// ActualDuration returns the whole minutes between start and end, or nil when
// the session has not run to completion.
func (s *Session) ActualDuration() *int {
	if s.StartedAt == nil || s.EndedAt == nil {
		return nil
	}
	minutes := int(s.EndedAt.Sub(*s.StartedAt).Minutes())
	return &minutes
}

// Clone returns a deep copy so stores can hand out sessions without sharing
// pointer fields.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CounterpartID != nil {
		id := *s.CounterpartID
		c.CounterpartID = &id
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
