package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the account record owned by the account service. This module only
// reads it, apart from LastSeenAt.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"not null"`
	Email      string    `gorm:"uniqueIndex"`
	Role       string    `gorm:"not null;default:'student'"`
	AvatarURL  string
	IsActive   bool `gorm:"not null;default:true"`
	LastSeenAt time.Time
	CreatedAt  time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

// Identity returns the snapshot carried by a live session.
func (u *User) Identity() Identity {
	return Identity{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
	}
}

// Identity is the authenticated identity record:
// {id, name, role, avatarUrl?}.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatarUrl"`
}

func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}
