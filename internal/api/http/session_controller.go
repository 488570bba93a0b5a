package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/api/http/converter"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
)

type SessionController struct {
	sessions  service.SessionInteractor
	emergency service.EmergencyInteractor
	log       *slog.Logger
}

func NewSessionController(sessions service.SessionInteractor, emergency service.EmergencyInteractor, log *slog.Logger) *SessionController {
	return &SessionController{
		sessions:  sessions,
		emergency: emergency,
		log:       log,
	}
}

func (c *SessionController) CreateSession(ctx *gin.Context) {
	type request struct {
		Title           string     `json:"title" binding:"required"`
		Description     string     `json:"description"`
		TherapistID     *uuid.UUID `json:"therapist_id"`
		PatientID       *uuid.UUID `json:"patient_id"`
		ScheduledAt     time.Time  `json:"scheduled_at" binding:"required"`
		DurationMinutes int        `json:"duration_minutes"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	in := service.CreateSessionInput{
		Title:           req.Title,
		Description:     req.Description,
		CounterpartID:   req.PatientID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
	}
	if req.TherapistID != nil {
		in.HostID = *req.TherapistID
	}

	session, err := c.sessions.Create(ctx.Request.Context(), identityFrom(ctx), in)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"session": converter.SessionToApi(session, time.Now())})
}

func (c *SessionController) ListSessions(ctx *gin.Context) {
	sessions, err := c.sessions.List(ctx.Request.Context(), identityFrom(ctx))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": converter.SessionsToApi(sessions, time.Now())})
}

func (c *SessionController) UpcomingSessions(ctx *gin.Context) {
	sessions, err := c.sessions.Upcoming(ctx.Request.Context(), identityFrom(ctx))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": converter.SessionsToApi(sessions, time.Now())})
}

func (c *SessionController) GetSession(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}

	session, err := c.sessions.Get(ctx.Request.Context(), identityFrom(ctx), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session, time.Now())})
}

func (c *SessionController) UpdateNotes(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}

	type request struct {
		Notes *string `json:"notes" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	session, err := c.sessions.UpdateNotes(ctx.Request.Context(), identityFrom(ctx), id, *req.Notes)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session, time.Now())})
}

func (c *SessionController) StartSession(ctx *gin.Context) {
	c.transition(ctx, c.sessions.Start)
}

func (c *SessionController) EndSession(ctx *gin.Context) {
	c.transition(ctx, c.sessions.End)
}

func (c *SessionController) CancelSession(ctx *gin.Context) {
	c.transition(ctx, c.sessions.Cancel)
}

type transitionFunc func(ctx context.Context, who domain.Identity, id uuid.UUID) (*domain.Session, error)

func (c *SessionController) transition(ctx *gin.Context, apply transitionFunc) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}

	session, err := apply(ctx.Request.Context(), identityFrom(ctx), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session, time.Now())})
}

func (c *SessionController) CreateEmergency(ctx *gin.Context) {
	type request struct {
		CounterpartID string `json:"counterpart_id" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	counterpart, err := uuid.Parse(req.CounterpartID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return
	}

	session, err := c.emergency.CreateEmergency(ctx.Request.Context(), identityFrom(ctx), counterpart)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"session": converter.SessionToApi(session, time.Now())})
}

func (c *SessionController) GetRoom(ctx *gin.Context) {
	info, err := c.sessions.RoomInfo(ctx.Request.Context(), identityFrom(ctx), ctx.Param("roomID"))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(info, time.Now())})
}

func sessionID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}
