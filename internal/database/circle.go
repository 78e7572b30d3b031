package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/apperror"
)

// GetCircle loads a circle with its teacher and members.
func (d *Database) GetCircle(ctx context.Context, id uuid.UUID) (*models.StudyCircle, error) {
	var circle models.StudyCircle
	err := d.db.WithContext(ctx).
		Preload("Teacher").
		Preload("Members").
		First(&circle, "id = ?", id).Error
	if err != nil {
		return nil, lookupErr(err, "circle")
	}
	return &circle, nil
}

// CirclesForUser returns the active circles taught by userID plus the ones
// userID is a member of.
func (d *Database) CirclesForUser(ctx context.Context, userID uuid.UUID) ([]models.StudyCircle, error) {
	memberOf := d.db.Table("circle_members").Select("study_circle_id").Where("user_id = ?", userID)

	var circles []models.StudyCircle
	err := d.db.WithContext(ctx).
		Preload("Teacher").
		Where("is_active = ?", true).
		Where("teacher_id = ? OR id IN (?)", userID, memberOf).
		Order("created_at").
		Find(&circles).Error
	if err != nil {
		return nil, apperror.Transient("failed to load circles", err)
	}
	return circles, nil
}
