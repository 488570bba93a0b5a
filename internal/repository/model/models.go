package model

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Title           string     `gorm:"size:255;not null"`
	Description     string     `gorm:"type:text"`
	HostID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_telehealth_host_status,priority:1"`
	CounterpartID   *uuid.UUID `gorm:"type:uuid;index:idx_telehealth_counterpart_status,priority:1"`
	ScheduledAt     time.Time  `gorm:"not null;index"`
	DurationMinutes int        `gorm:"not null"`
	Status          string     `gorm:"size:20;not null;index:idx_telehealth_host_status,priority:2;index:idx_telehealth_counterpart_status,priority:2"`
	IsEmergency     bool       `gorm:"not null"`
	RoomID          *string    `gorm:"size:64;uniqueIndex"`
	SessionURL      string     `gorm:"size:512"`
	Notes           string     `gorm:"type:text"`
	HasRecording    bool       `gorm:"not null"`
	HasTranscript   bool       `gorm:"not null"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
	StartedAt       *time.Time
	EndedAt         *time.Time
}

func (Session) TableName() string {
	return "telehealth_session"
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName string    `gorm:"size:150;not null"`
	LastName  string    `gorm:"size:150;not null"`
	Email     *string   `gorm:"size:255;uniqueIndex"`
	Role      string    `gorm:"size:20;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
