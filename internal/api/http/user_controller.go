package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
)

type UserController struct {
	users service.UserInteractor
	log   *slog.Logger
}

func NewUserController(users service.UserInteractor, log *slog.Logger) *UserController {
	return &UserController{users: users, log: log}
}

func (c *UserController) CreateUser(ctx *gin.Context) {
	if identityFrom(ctx).Role != domain.RoleAdmin {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	type request struct {
		FirstName string `json:"first_name" binding:"required"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Role      string `json:"role" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := c.users.CreateUser(ctx.Request.Context(), service.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": user})
}

func (c *UserController) GetUser(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := c.users.GetUser(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": user})
}
