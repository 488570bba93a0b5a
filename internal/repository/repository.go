package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrRoomIDExists        = errors.New("room id already exists")
	ErrRoomAlreadyAssigned = errors.New("session already has a room id")
	ErrStatusConflict      = errors.New("session status changed concurrently")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserEmailExists     = errors.New("user with email already exists")
)

// SessionFilter narrows List. Zero fields are ignored.
type SessionFilter struct {
	ParticipantID  *uuid.UUID
	Status         domain.SessionStatus
	ScheduledAfter *time.Time
	Ascending      bool
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]*domain.Session, error)
	// UpdateStatus writes change only if the stored status still equals
	// change.From, returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, change domain.StatusChange) error
	// AssignRoomID sets the room only if none is set yet, returning
	// ErrRoomAlreadyAssigned otherwise.
	AssignRoomID(ctx context.Context, id uuid.UUID, roomID, sessionURL string) error
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
