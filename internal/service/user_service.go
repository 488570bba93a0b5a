package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
)

type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Role      domain.Role
}

type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	const op = "service.user.create"
	log := s.log.With(slog.String("op", op))

	if err := validateUser(in.FirstName, in.Email, in.Role); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := domain.NewUser(strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), strings.TrimSpace(in.Email), in.Role)
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrUserEmailExists) {
			log.Error("failed to create user", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	log.Info("user created", slog.String("user_id", user.ID.String()), slog.String("role", string(user.Role)))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "service.user.get"

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, user *domain.User) error {
	const op = "service.user.update"

	if user == nil {
		return fmt.Errorf("%s: %w: user is required", op, ErrInvalidInput)
	}
	if err := validateUser(user.FirstName, user.Email, user.Role); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}
	return nil
}

func validateUser(firstName, email string, role domain.Role) error {
	if strings.TrimSpace(firstName) == "" {
		return fmt.Errorf("%w: first name is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if email = strings.TrimSpace(email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
	}
	return nil
}
