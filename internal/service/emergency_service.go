package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
)

// Notifier accepts a notice for background delivery. It must not block.
type Notifier interface {
	Enqueue(n notify.EmergencyNotice) bool
}

// EmergencyService opens a joinable session immediately and mails the
// patient a link without waiting for the mail to go out.
type EmergencyService struct {
	sessions    repository.SessionRepository
	users       repository.UserRepository
	notifier    Notifier
	log         *slog.Logger
	frontendURL string
	now         func() time.Time
}

func NewEmergencyService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	notifier Notifier,
	log *slog.Logger,
	frontendURL string,
) *EmergencyService {
	return &EmergencyService{
		sessions:    sessions,
		users:       users,
		notifier:    notifier,
		log:         log,
		frontendURL: frontendURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *EmergencyService) CreateEmergency(ctx context.Context, who domain.Identity, counterpartID uuid.UUID) (*domain.Session, error) {
	const op = "service.emergency.create"
	log := s.log.With(
		slog.String("op", op),
		slog.String("requested_by", who.UserID.String()),
		slog.String("counterpart_id", counterpartID.String()),
	)

	if !who.Role.IsClinician() {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	patient, err := s.users.GetByID(ctx, counterpartID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrCounterpartNotFound)
		}
		log.Error("failed to load counterpart", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if patient.Role != domain.RoleClient {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongRole)
	}

	clinicianName := who.DisplayName
	if clinician, err := s.users.GetByID(ctx, who.UserID); err == nil {
		clinicianName = clinician.DisplayName()
	}

	session, err := s.persist(ctx, who.UserID, patient)
	if err != nil {
		log.Error("failed to create emergency session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("session_id", session.ID.String()), slog.String("room_id", session.RoomID))
	log.Info("emergency session created", slog.String("event_type", "emergency_session_created"))

	if patient.Email == "" {
		log.Warn("counterpart has no email, notification skipped")
		return session, nil
	}

	s.notifier.Enqueue(notify.EmergencyNotice{
		SessionID:      session.ID,
		RoomID:         session.RoomID,
		SessionURL:     session.SessionURL,
		RecipientEmail: patient.Email,
		PatientName:    patient.DisplayName(),
		ClinicianName:  clinicianName,
	})

	return session, nil
}

// persist stores the session with a fresh room id, drawing a new one on the
// rare unique collision.
func (s *EmergencyService) persist(ctx context.Context, host uuid.UUID, patient *domain.User) (*domain.Session, error) {
	counterpart := patient.ID

	for attempt := 0; attempt < maxRoomAttempts; attempt++ {
		session := domain.NewSession("Emergency Session - "+patient.DisplayName(), host, &counterpart, s.now(), domain.DefaultSessionDuration)
		session.IsEmergency = true
		session.RoomID = domain.NewRoomID()
		session.SessionURL = domain.RoomURL(s.frontendURL, session.RoomID)

		err := s.sessions.Create(ctx, session)
		if errors.Is(err, repository.ErrRoomIDExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, errors.New("could not allocate a unique room id")
}
