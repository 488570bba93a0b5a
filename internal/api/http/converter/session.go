package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
)

type SessionResponse struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	HostID          uuid.UUID            `json:"therapist_id"`
	CounterpartID   *uuid.UUID           `json:"patient_id"`
	ScheduledAt     time.Time            `json:"scheduled_at"`
	DurationMinutes int                  `json:"duration_minutes"`
	Status          domain.SessionStatus `json:"status"`
	IsEmergency     bool                 `json:"is_emergency"`
	RoomID          string               `json:"room_id"`
	SessionURL      string               `json:"session_url"`
	Notes           string               `json:"notes"`
	HasRecording    bool                 `json:"has_recording"`
	HasTranscript   bool                 `json:"has_transcript"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	StartedAt       *time.Time           `json:"started_at"`
	EndedAt         *time.Time           `json:"ended_at"`
	IsUpcoming      bool                 `json:"is_upcoming"`
	IsPast          bool                 `json:"is_past"`
	ActualDuration  *int                 `json:"actual_duration"`
}

func SessionToApi(s *domain.Session, now time.Time) *SessionResponse {
	return &SessionResponse{
		ID:              s.ID,
		Title:           s.Title,
		Description:     s.Description,
		HostID:          s.HostID,
		CounterpartID:   s.CounterpartID,
		ScheduledAt:     s.ScheduledAt,
		DurationMinutes: s.DurationMinutes,
		Status:          s.Status,
		IsEmergency:     s.IsEmergency,
		RoomID:          s.RoomID,
		SessionURL:      s.SessionURL,
		Notes:           s.Notes,
		HasRecording:    s.HasRecording,
		HasTranscript:   s.HasTranscript,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		IsUpcoming:      s.IsUpcoming(now),
		IsPast:          s.IsPast(now),
		ActualDuration:  s.ActualDuration(),
	}
}

func SessionsToApi(sessions []*domain.Session, now time.Time) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionToApi(s, now))
	}
	return out
}

type RoomResponse struct {
	RoomID       string           `json:"room_id"`
	Session      *SessionResponse `json:"session"`
	Participants *int             `json:"participants"`
}

// RoomToApi leaves Participants null when presence could not be read.
func RoomToApi(info *domain.RoomInfo, now time.Time) *RoomResponse {
	resp := &RoomResponse{
		RoomID:  info.RoomID,
		Session: SessionToApi(info.Session, now),
	}
	if info.PresenceKnown {
		n := info.Participants
		resp.Participants = &n
	}
	return resp
}
