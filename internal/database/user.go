package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/apperror"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		return apperror.Transient("failed to save user", err)
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &user, nil
}

func (d *Database) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_seen_at", at.UTC()).Error
	if err != nil {
		return apperror.Transient("failed to update last seen", err)
	}
	return nil
}
