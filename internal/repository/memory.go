package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
)

type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	rooms    map[string]uuid.UUID
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]*domain.Session),
		rooms:    make(map[string]uuid.UUID),
	}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session.RoomID != "" {
		if _, ok := r.rooms[session.RoomID]; ok {
			return ErrRoomIDExists
		}
		r.rooms[session.RoomID] = session.ID
	}

	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *InMemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (r *InMemorySessionRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (r *InMemorySessionRepository) List(ctx context.Context, filter SessionFilter) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		if filter.ParticipantID != nil && !session.HasParticipant(*filter.ParticipantID) {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		if filter.ScheduledAfter != nil && session.ScheduledAt.Before(*filter.ScheduledAfter) {
			continue
		}
		result = append(result, session.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if filter.Ascending {
			return result[i].ScheduledAt.Before(result[j].ScheduledAt)
		}
		return result[i].ScheduledAt.After(result[j].ScheduledAt)
	})

	return result, nil
}

func (r *InMemorySessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change domain.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status != change.From {
		return ErrStatusConflict
	}

	session.Status = change.To
	if change.StartedAt != nil {
		t := *change.StartedAt
		session.StartedAt = &t
	}
	if change.EndedAt != nil {
		t := *change.EndedAt
		session.EndedAt = &t
	}
	session.UpdatedAt = change.UpdatedAt
	return nil
}

func (r *InMemorySessionRepository) AssignRoomID(ctx context.Context, id uuid.UUID, roomID, sessionURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.RoomID != "" {
		return ErrRoomAlreadyAssigned
	}
	if _, ok := r.rooms[roomID]; ok {
		return ErrRoomIDExists
	}

	session.RoomID = roomID
	session.SessionURL = sessionURL
	session.UpdatedAt = time.Now().UTC()
	r.rooms[roomID] = id
	return nil
}

func (r *InMemorySessionRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	session.Notes = notes
	session.UpdatedAt = time.Now().UTC()
	return nil
}

type InMemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*domain.User
	emails map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[uuid.UUID]*domain.User),
		emails: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Email != "" {
		if _, ok := r.emails[user.Email]; ok {
			return ErrUserEmailExists
		}
		r.emails[user.Email] = user.ID
	}

	u := *user
	r.users[user.ID] = &u
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	u := *user
	return &u, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	if user.Email != existing.Email {
		if owner, taken := r.emails[user.Email]; taken && owner != user.ID {
			return ErrUserEmailExists
		}
		delete(r.emails, existing.Email)
		if user.Email != "" {
			r.emails[user.Email] = user.ID
		}
	}

	u := *user
	r.users[user.ID] = &u
	return nil
}
