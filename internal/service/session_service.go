package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/presence"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
	"golang.org/x/sync/singleflight"
)

const (
	maxTransitionAttempts = 3
	maxRoomAttempts       = 5
	maxTitleLength        = 255
	roomAssignTimeout     = 5 * time.Second
)

type SessionService struct {
	sessions    repository.SessionRepository
	presence    presence.Tracker
	log         *slog.Logger
	metrics     *metrics.Metrics
	frontendURL string
	rooms       singleflight.Group
	now         func() time.Time
}

func NewSessionService(
	sessions repository.SessionRepository,
	tracker presence.Tracker,
	log *slog.Logger,
	m *metrics.Metrics,
	frontendURL string,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		presence:    tracker,
		log:         log,
		metrics:     m,
		frontendURL: frontendURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) Create(ctx context.Context, who domain.Identity, in CreateSessionInput) (*domain.Session, error) {
	const op = "service.session.create"
	log := s.log.With(slog.String("op", op))

	if who.Role != domain.RoleAdmin && !who.Role.IsClinician() {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	if in.HostID == uuid.Nil && who.Role.IsClinician() {
		in.HostID = who.UserID
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validateCreate(in); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session := domain.NewSession(in.Title, in.HostID, in.CounterpartID, in.ScheduledAt, in.DurationMinutes)
	session.Description = in.Description

	if err := s.sessions.Create(ctx, session); err != nil {
		log.Error("failed to create session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("telehealth session created",
		slog.String("event_type", "telehealth_session_created"),
		slog.String("session_id", session.ID.String()),
		slog.String("host_id", session.HostID.String()),
		slog.String("created_by", who.UserID.String()),
	)

	return session, nil
}

func (s *SessionService) validateCreate(in CreateSessionInput) error {
	switch {
	case in.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Title) > maxTitleLength:
		return fmt.Errorf("%w: title is too long", ErrInvalidInput)
	case in.HostID == uuid.Nil:
		return fmt.Errorf("%w: host is required", ErrInvalidInput)
	case in.CounterpartID != nil && *in.CounterpartID == in.HostID:
		return fmt.Errorf("%w: host and counterpart must differ", ErrInvalidInput)
	case in.ScheduledAt.IsZero():
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	case in.ScheduledAt.Before(s.now()):
		return fmt.Errorf("%w: cannot schedule sessions in the past", ErrInvalidInput)
	case in.DurationMinutes < 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return nil
}

// Get returns the session, assigning a room id first if it has none.
func (s *SessionService) Get(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error) {
	const op = "service.session.get"

	session, err := s.load(ctx, who, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session.RoomID != "" {
		return session, nil
	}

	// The assignment is shared by every concurrent reader, so it must not
	// depend on whichever caller happened to start it.
	ch := s.rooms.DoChan(id.String(), func() (any, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), roomAssignTimeout)
		defer cancel()
		return s.assignRoom(actx, id)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(*domain.Session).Clone(), nil
	}
}

// assignRoom sets a room id unless another reader got there first, in which
// case the stored one wins.
func (s *SessionService) assignRoom(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	log := s.log.With(
		slog.String("op", "service.session.assignRoom"),
		slog.String("session_id", id.String()),
	)

	for attempt := 0; attempt < maxRoomAttempts; attempt++ {
		roomID := domain.NewRoomID()
		err := s.sessions.AssignRoomID(ctx, id, roomID, domain.RoomURL(s.frontendURL, roomID))
		switch {
		case err == nil:
			log.Info("room assigned", slog.String("room_id", roomID))
			return s.reload(ctx, id)
		case errors.Is(err, repository.ErrRoomAlreadyAssigned):
			return s.reload(ctx, id)
		case errors.Is(err, repository.ErrRoomIDExists):
			log.Warn("room id collision, retrying", slog.String("room_id", roomID))
			continue
		default:
			return nil, mapRepoErr(err)
		}
	}
	return nil, errors.New("could not allocate a unique room id")
}

func (s *SessionService) List(ctx context.Context, who domain.Identity) ([]*domain.Session, error) {
	const op = "service.session.list"

	filter := repository.SessionFilter{}
	if who.Role != domain.RoleAdmin {
		filter.ParticipantID = &who.UserID
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	visible := sessions[:0]
	for _, session := range sessions {
		if canView(who, session) {
			visible = append(visible, session)
		}
	}
	return visible, nil
}

// Upcoming lists the caller's own scheduled sessions that have not started
// yet, soonest first.
func (s *SessionService) Upcoming(ctx context.Context, who domain.Identity) ([]*domain.Session, error) {
	const op = "service.session.upcoming"

	now := s.now()
	sessions, err := s.sessions.List(ctx, repository.SessionFilter{
		ParticipantID:  &who.UserID,
		Status:         domain.SessionStatusScheduled,
		ScheduledAfter: &now,
		Ascending:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

func (s *SessionService) Start(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error) {
	return s.transition(ctx, who, id, domain.TransitionStart)
}

func (s *SessionService) End(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error) {
	return s.transition(ctx, who, id, domain.TransitionEnd)
}

func (s *SessionService) Cancel(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error) {
	return s.transition(ctx, who, id, domain.TransitionCancel)
}

// transition applies t with an optimistic conditional write. A lost race
// re-reads the session and re-checks the guard, so two concurrent starts
// yield one success and one invalid transition.
func (s *SessionService) transition(ctx context.Context, who domain.Identity, id uuid.UUID, t domain.Transition) (*domain.Session, error) {
	op := "service.session." + string(t)
	log := s.log.With(
		slog.String("op", op),
		slog.String("session_id", id.String()),
	)

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		session, err := s.load(ctx, who, id)
		if err != nil {
			s.metrics.Transition(string(t), "error")
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		change, err := session.Apply(t, s.now())
		if err != nil {
			s.metrics.Transition(string(t), "invalid")
			log.Info("transition rejected", slog.String("status", string(session.Status)))
			return nil, err
		}

		err = s.sessions.UpdateStatus(ctx, id, change)
		if errors.Is(err, repository.ErrStatusConflict) {
			log.Debug("status changed concurrently, re-evaluating")
			continue
		}
		if err != nil {
			s.metrics.Transition(string(t), "error")
			log.Error("failed to update status", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
		}

		s.metrics.Transition(string(t), "ok")
		log.Info("telehealth session "+string(change.To),
			slog.String("event_type", transitionEvent(t)),
			slog.String("from", string(change.From)),
			slog.String("to", string(change.To)),
			slog.String("by", who.UserID.String()),
		)
		return s.reload(ctx, id)
	}

	s.metrics.Transition(string(t), "conflict")
	return nil, fmt.Errorf("%s: %w", op, ErrConflict)
}

func transitionEvent(t domain.Transition) string {
	switch t {
	case domain.TransitionStart:
		return "telehealth_session_started"
	case domain.TransitionEnd:
		return "telehealth_session_ended"
	case domain.TransitionCancel:
		return "telehealth_session_cancelled"
	}
	return "telehealth_session_updated"
}

// UpdateNotes never touches status or lifecycle timestamps.
func (s *SessionService) UpdateNotes(ctx context.Context, who domain.Identity, id uuid.UUID, notes string) (*domain.Session, error) {
	const op = "service.session.updateNotes"

	session, err := s.load(ctx, who, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if who.Role == domain.RoleClient {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	if err := s.sessions.UpdateNotes(ctx, session.ID, notes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	s.log.Info("telehealth session updated",
		slog.String("op", op),
		slog.String("event_type", "telehealth_session_updated"),
		slog.String("session_id", id.String()),
		slog.String("updated_by", who.UserID.String()),
	)
	return s.reload(ctx, id)
}

// RoomInfo reports the session behind a room and how many connections are
// in it. A presence failure is logged and reported as unknown.
func (s *SessionService) RoomInfo(ctx context.Context, who domain.Identity, roomID string) (*domain.RoomInfo, error) {
	const op = "service.session.roomInfo"
	log := s.log.With(slog.String("op", op), slog.String("room_id", roomID))

	session, err := s.sessions.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoomNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !canView(who, session) {
		return nil, fmt.Errorf("%s: %w", op, ErrRoomNotFound)
	}

	info := &domain.RoomInfo{RoomID: roomID, Session: session}
	count, err := s.presence.Count(ctx, roomID)
	if err != nil {
		log.Warn("presence unavailable", sl.Err(err))
		return info, nil
	}
	info.Participants = count
	info.PresenceKnown = true
	return info, nil
}

func (s *SessionService) load(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !canView(who, session) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) reload(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return session, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrUserEmailExists):
		return ErrUserEmailExists
	}
	return err
}
