package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository/model"
	"gorm.io/gorm"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewPostgresSessionRepository(db *gorm.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelSession(session)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRoomIDExists
		}
		return err
	}
	return nil
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return toDomainSession(&session), nil
}

func (r *PostgresSessionRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "room_id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return toDomainSession(&session), nil
}

func (r *PostgresSessionRepository) List(ctx context.Context, filter SessionFilter) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&model.Session{})
	if filter.ParticipantID != nil {
		query = query.Where("(host_id = ? OR counterpart_id = ?)", *filter.ParticipantID, *filter.ParticipantID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.ScheduledAfter != nil {
		query = query.Where("scheduled_at >= ?", filter.ScheduledAfter.UTC())
	}
	if filter.Ascending {
		query = query.Order("scheduled_at ASC")
	} else {
		query = query.Order("scheduled_at DESC")
	}

	var sessions []model.Session
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Session, 0, len(sessions))
	for i := range sessions {
		result = append(result, toDomainSession(&sessions[i]))
	}
	return result, nil
}

func (r *PostgresSessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change domain.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	updates := map[string]any{
		"status":     string(change.To),
		"updated_at": change.UpdatedAt.UTC(),
	}
	if change.StartedAt != nil {
		updates["started_at"] = change.StartedAt.UTC()
	}
	if change.EndedAt != nil {
		updates["ended_at"] = change.EndedAt.UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND status = ?", id, string(change.From)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.notFoundOr(ctx, id, ErrStatusConflict)
	}
	return nil
}

func (r *PostgresSessionRepository) AssignRoomID(ctx context.Context, id uuid.UUID, roomID, sessionURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND room_id IS NULL", id).
		Updates(map[string]any{
			"room_id":     roomID,
			"session_url": sessionURL,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrRoomIDExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.notFoundOr(ctx, id, ErrRoomAlreadyAssigned)
	}
	return nil
}

func (r *PostgresSessionRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"notes":      notes,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// notFoundOr distinguishes a missing row from a failed conditional update.
func (r *PostgresSessionRepository) notFoundOr(ctx context.Context, id uuid.UUID, conflict error) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return conflict
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updateData := map[string]any{
		"first_name": userModel.FirstName,
		"last_name":  userModel.LastName,
		"role":       userModel.Role,
		"updated_at": userModel.UpdatedAt,
	}

	if userModel.Email == nil {
		updateData["email"] = gorm.Expr("NULL")
	} else {
		updateData["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func toModelSession(s *domain.Session) *model.Session {
	var roomID *string
	if s.RoomID != "" {
		id := s.RoomID
		roomID = &id
	}

	return &model.Session{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		HostID:          s.HostID,
		CounterpartID:   s.CounterpartID,
		ScheduledAt:     s.ScheduledAt.UTC(),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		IsEmergency:     s.IsEmergency,
		RoomID:          roomID,
		SessionURL:      s.SessionURL,
		Notes:           s.Notes,
		HasRecording:    s.HasRecording,
		HasTranscript:   s.HasTranscript,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
		StartedAt:       utcPtr(s.StartedAt),
		EndedAt:         utcPtr(s.EndedAt),
	}
}

func toDomainSession(s *model.Session) *domain.Session {
	roomID := ""
	if s.RoomID != nil {
		roomID = *s.RoomID
	}

	return &domain.Session{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		HostID:          s.HostID,
		CounterpartID:   s.CounterpartID,
		ScheduledAt:     s.ScheduledAt.UTC(),
		DurationMinutes: s.DurationMinutes,
		Status:          domain.SessionStatus(s.Status),
		IsEmergency:     s.IsEmergency,
		RoomID:          roomID,
		SessionURL:      s.SessionURL,
		Notes:           s.Notes,
		HasRecording:    s.HasRecording,
		HasTranscript:   s.HasTranscript,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
		StartedAt:       utcPtr(s.StartedAt),
		EndedAt:         utcPtr(s.EndedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}

	return &domain.User{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     email,
		Role:      domain.Role(user.Role),
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}
