package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTherapist Role = "therapist"
	RoleStaff     Role = "staff"
	RoleClient    Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTherapist, RoleStaff, RoleClient:
		return true
	}
	return false
}

// IsClinician reports whether the role may run sessions on behalf of the practice.
func (r Role) IsClinician() bool {
	return r == RoleTherapist || r == RoleStaff
}

// User is a directory entry for someone who can take part in sessions.
type User struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewUser(firstName, lastName, email string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Identity is what the upstream gateway tells us about the caller.
type Identity struct {
	UserID      uuid.UUID
	Role        Role
	DisplayName string
}

func (i Identity) Anonymous() bool {
	return i.UserID == uuid.Nil
}
