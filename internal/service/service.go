package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrSessionNotFound     = errors.New("session not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomClosed          = errors.New("room is closed")
	ErrCounterpartNotFound = errors.New("counterpart not found")
	ErrWrongRole           = errors.New("counterpart has wrong role")
	ErrConflict            = errors.New("session changed concurrently, retry")
	ErrUnavailable         = errors.New("signaling backend unavailable")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserEmailExists     = errors.New("user with email already exists")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrUnknownSignal       = errors.New("unknown signal type")
)

type CreateSessionInput struct {
	Title           string
	Description     string
	HostID          uuid.UUID
	CounterpartID   *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
}

type SessionInteractor interface {
	Create(ctx context.Context, who domain.Identity, in CreateSessionInput) (*domain.Session, error)
	Get(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error)
	List(ctx context.Context, who domain.Identity) ([]*domain.Session, error)
	Upcoming(ctx context.Context, who domain.Identity) ([]*domain.Session, error)
	Start(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error)
	End(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error)
	Cancel(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error)
	UpdateNotes(ctx context.Context, who domain.Identity, id uuid.UUID, notes string) (*domain.Session, error)
	RoomInfo(ctx context.Context, who domain.Identity, roomID string) (*domain.RoomInfo, error)
}

type EmergencyInteractor interface {
	CreateEmergency(ctx context.Context, who domain.Identity, counterpartID uuid.UUID) (*domain.Session, error)
}

type SignalInteractor interface {
	Connect(ctx context.Context, roomID string, who domain.Identity) (*Connection, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

// canView mirrors the role-scoped listing: admins see everything, clinicians
// their hosted sessions, clients the sessions they attend.
func canView(who domain.Identity, s *domain.Session) bool {
	switch who.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleTherapist, domain.RoleStaff:
		return s.HostID == who.UserID
	case domain.RoleClient:
		return s.CounterpartID != nil && *s.CounterpartID == who.UserID
	}
	return false
}
