package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
)

// MessageStore is the durable message log. *database.Database implements it.
type MessageStore interface {
	Append(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	FetchPage(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID, limit int, before string) (*models.Page, error)
	ChatListSummary(ctx context.Context, userID uuid.UUID, circleIDs []uuid.UUID) ([]models.ConversationSummary, error)
	SoftDelete(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID) (int64, error)
	HardDeleteForAll(ctx context.Context, key models.ConversationKey) (int64, error)
	MarkRead(ctx context.Context, filter models.ReadFilter) (*models.ReadResult, error)
}

// CircleDirectory reads circle membership owned by the circle service.
type CircleDirectory interface {
	GetCircle(ctx context.Context, id uuid.UUID) (*models.StudyCircle, error)
	CirclesForUser(ctx context.Context, userID uuid.UUID) ([]models.StudyCircle, error)
}

// IdentityDirectory reads accounts owned by the account service.
type IdentityDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Presence is the live side: who is online and how to reach them.
// *websocket.Hub implements it.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
	NotifyRead(readBy uuid.UUID, bySender map[uuid.UUID][]uuid.UUID)
}
