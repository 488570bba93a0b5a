package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrSessionNotFound, http.StatusNotFound},
	{service.ErrRoomNotFound, http.StatusNotFound},
	{service.ErrCounterpartNotFound, http.StatusNotFound},
	{service.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrInvalidTransition, http.StatusConflict},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrUserEmailExists, http.StatusConflict},
	{service.ErrRoomClosed, http.StatusGone},
	{service.ErrWrongRole, http.StatusUnprocessableEntity},
	{service.ErrUnavailable, http.StatusServiceUnavailable},
}

// writeError maps a service error to a status and a client-safe message.
// Anything unrecognised is logged and reported as a 500.
func writeError(ctx *gin.Context, log *slog.Logger, err error) {
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		ctx.JSON(http.StatusConflict, gin.H{"error": terr.Error()})
		return
	}

	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			msg := err.Error()
			// Drop the "service.x.y: " operation prefix.
			if i := strings.Index(msg, e.err.Error()); i >= 0 {
				msg = msg[i:]
			}
			ctx.JSON(e.status, gin.H{"error": msg})
			return
		}
	}

	log.Error("request failed",
		slog.String("method", ctx.Request.Method),
		slog.String("path", ctx.FullPath()),
		sl.Err(err),
	)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
