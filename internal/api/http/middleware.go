package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
)

// Authentication happens upstream. The gateway forwards who the caller is in
// these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"

	identityKey = "identity"
)

// IdentityMiddleware reads the caller from gateway headers. Requests without
// them are anonymous.
func IdentityMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var who domain.Identity

		if raw := ctx.GetHeader(HeaderUserID); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderUserID})
				return
			}
			role := domain.Role(ctx.GetHeader(HeaderUserRole))
			if !role.Valid() {
				ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderUserRole})
				return
			}
			who = domain.Identity{
				UserID:      id,
				Role:        role,
				DisplayName: ctx.GetHeader(HeaderUserName),
			}
		}

		ctx.Set(identityKey, who)
		ctx.Next()
	}
}

func RequireIdentity() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if identityFrom(ctx).Anonymous() {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		ctx.Next()
	}
}

func identityFrom(ctx *gin.Context) domain.Identity {
	if v, ok := ctx.Get(identityKey); ok {
		if who, ok := v.(domain.Identity); ok {
			return who
		}
	}
	return domain.Identity{}
}
