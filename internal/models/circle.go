package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudyCircle is owned by the circle service. The chat core reads the
// teacher and member set to authorize circle traffic and never mutates it.
type StudyCircle struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null;index"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time

	Teacher User   `gorm:"foreignKey:TeacherID"`
	Members []User `gorm:"many2many:circle_members"`
}

func (c *StudyCircle) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *StudyCircle) IsTeacher(userID uuid.UUID) bool {
	return c.TeacherID == userID
}

func (c *StudyCircle) IsMember(userID uuid.UUID) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// CanAccess is true for the teacher and for every member.
func (c *StudyCircle) CanAccess(userID uuid.UUID) bool {
	return c.IsTeacher(userID) || c.IsMember(userID)
}
