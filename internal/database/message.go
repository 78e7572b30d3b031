package database

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Append validates the message, stamps it and persists it.
func (d *Database) Append(ctx context.Context, message *models.Message) error {
	if err := validateMessage(message); err != nil {
		return err
	}

	if message.ReplyToID != nil {
		var target models.Message
		if err := d.db.WithContext(ctx).First(&target, "id = ?", *message.ReplyToID).Error; err != nil {
			return lookupErr(err, "original message")
		}
		if target.Key() != message.Key() {
			return apperror.Validation("reply must belong to the same conversation")
		}
	}

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.IsRead = false
	message.CreatedAt = d.nextTimestamp()

	if err := d.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error; err != nil {
		return apperror.Transient("failed to save message", err)
	}
	return nil
}

func validateMessage(m *models.Message) error {
	if m.SenderID == uuid.Nil {
		return apperror.Validation("sender is required")
	}
	if strings.TrimSpace(m.Content) == "" {
		return apperror.Validation("message content is required")
	}

	switch m.Kind {
	case models.KindPrivate:
		if m.ReceiverID == nil || *m.ReceiverID == uuid.Nil {
			return apperror.Validation("receiver is required for private messages")
		}
		if m.CircleID != nil {
			return apperror.Validation("private messages cannot target a circle")
		}
		if *m.ReceiverID == m.SenderID {
			return apperror.Validation("cannot send a private message to yourself")
		}
	case models.KindCircle:
		if m.CircleID == nil || *m.CircleID == uuid.Nil {
			return apperror.Validation("circle is required for circle messages")
		}
		if m.ReceiverID != nil {
			return apperror.Validation("circle messages cannot have a receiver")
		}
	default:
		return apperror.Validation("unknown conversation kind %q", m.Kind)
	}
	return nil
}

// GetMessage loads a single message with its sender and reply preview.
func (d *Database) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := d.db.WithContext(ctx).
		Preload("Sender").
		Preload("ReplyTo").
		Preload("ReplyTo.Sender").
		First(&message, "id = ?", id).Error
	if err != nil {
		return nil, lookupErr(err, "message")
	}
	return &message, nil
}

// FetchPage returns up to limit messages visible to viewerID, newest first.
// before may be a message id or a millisecond timestamp; anything else,
// including an id that does not resolve, is ignored.
func (d *Database) FetchPage(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID, limit int, before string) (*models.Page, error) {
	if limit <= 0 {
		limit = models.DefaultPageSize
	}

	cursor, err := d.resolveCursor(ctx, before)
	if err != nil {
		return nil, err
	}

	query := func() *gorm.DB {
		q := d.db.WithContext(ctx).
			Model(&models.Message{}).
			Scopes(inConversation(key), visibleTo(viewerID))
		if cursor != nil {
			q = q.Scopes(olderThan(*cursor))
		}
		return q
	}

	page := &models.Page{}
	if err := query().Count(&page.TotalCount).Error; err != nil {
		return nil, apperror.Transient("failed to count messages", err)
	}

	var messages []models.Message
	err = query().
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Preload("Sender").
		Preload("ReplyTo").
		Preload("ReplyTo.Sender").
		Find(&messages).Error
	if err != nil {
		return nil, apperror.Transient("failed to load messages", err)
	}

	if len(messages) > limit {
		messages = messages[:limit]
		page.HasMore = true
		page.NextCursor = messages[len(messages)-1].ID.String()
	}
	page.Messages = messages
	return page, nil
}

func (d *Database) resolveCursor(ctx context.Context, raw string) (*models.Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if id, err := uuid.Parse(raw); err == nil {
		var ref models.Message
		err := d.db.WithContext(ctx).Select("id", "created_at").First(&ref, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, apperror.Transient("failed to resolve cursor", err)
		}
		return &models.Cursor{ID: ref.ID, CreatedAt: ref.CreatedAt}, nil
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return &models.Cursor{CreatedAt: time.UnixMilli(ms).UTC()}, nil
	}
	return nil, nil
}

// ChatListSummary returns one row per private counterpart and per circle in
// circleIDs, most recent activity first.
func (d *Database) ChatListSummary(ctx context.Context, userID uuid.UUID, circleIDs []uuid.UUID) ([]models.ConversationSummary, error) {
	type counterpartRow struct {
		CounterpartID uuid.UUID
		Unread        int64
	}
	var rows []counterpartRow
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS counterpart_id, "+
			"SUM(CASE WHEN receiver_id = ? AND is_read = ? THEN 1 ELSE 0 END) AS unread",
			userID, userID, false).
		Where("kind = ?", models.KindPrivate).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Scopes(visibleTo(userID)).
		Group("counterpart_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.Transient("failed to load chat list", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(rows)+len(circleIDs))
	for _, row := range rows {
		last, err := d.latest(ctx, models.PrivateKey(userID, row.CounterpartID), userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{
			Kind:          models.KindPrivate,
			CounterpartID: row.CounterpartID,
			LastMessage:   last,
			UnreadCount:   row.Unread,
		})
	}

	for _, circleID := range circleIDs {
		key := models.CircleKey(circleID)
		last, err := d.latest(ctx, key, userID)
		if err != nil {
			return nil, err
		}
		var unread int64
		err = d.db.WithContext(ctx).
			Model(&models.Message{}).
			Scopes(inConversation(key), visibleTo(userID)).
			Where("sender_id <> ? AND is_read = ?", userID, false).
			Count(&unread).Error
		if err != nil {
			return nil, apperror.Transient("failed to count unread messages", err)
		}
		summaries = append(summaries, models.ConversationSummary{
			Kind:        models.KindCircle,
			CircleID:    circleID,
			LastMessage: last,
			UnreadCount: unread,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return summaries, nil
}

func (d *Database) latest(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID) (*models.Message, error) {
	var messages []models.Message
	err := d.db.WithContext(ctx).
		Scopes(inConversation(key), visibleTo(viewerID)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, apperror.Transient("failed to load last message", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// SoftDelete hides every message of the conversation from viewerID only.
// Repeating it is a no-op.
func (d *Database) SoftDelete(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID) (int64, error) {
	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Scopes(inConversation(key), visibleTo(viewerID)).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, apperror.Transient("failed to load conversation", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	deletions := make([]models.MessageDeletion, len(ids))
	for i, id := range ids {
		deletions[i] = models.MessageDeletion{MessageID: id, UserID: viewerID, CreatedAt: now}
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(deletions, 500)
	if res.Error != nil {
		return 0, apperror.Transient("failed to delete conversation", res.Error)
	}
	return res.RowsAffected, nil
}

// HardDeleteForAll removes every message of the conversation for everyone.
func (d *Database) HardDeleteForAll(ctx context.Context, key models.ConversationKey) (int64, error) {
	db := d.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Message{}).Scopes(inConversation(key)).Count(&count).Error; err != nil {
		return 0, apperror.Transient("failed to load conversation", err)
	}
	if count == 0 {
		return 0, apperror.NotFound("no conversation to delete")
	}

	ids := d.db.Model(&models.Message{}).Select("id").Scopes(inConversation(key))
	if err := db.Where("message_id IN (?)", ids).Delete(&models.MessageDeletion{}).Error; err != nil {
		return 0, apperror.Transient("failed to delete conversation", err)
	}
	res := db.Scopes(inConversation(key)).Delete(&models.Message{})
	if res.Error != nil {
		return 0, apperror.Transient("failed to delete conversation", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkRead flips IsRead on the unread inbound rows selected by filter.
// Rows appended while it runs are simply not covered.
func (d *Database) MarkRead(ctx context.Context, filter models.ReadFilter) (*models.ReadResult, error) {
	result := &models.ReadResult{BySender: map[uuid.UUID][]uuid.UUID{}}

	q := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("is_read = ?", false).
		Where("sender_id <> ?", filter.ViewerID)

	switch {
	case len(filter.MessageIDs) > 0:
		q = q.Where("id IN ?", filter.MessageIDs).Where("receiver_id = ?", filter.ViewerID)
	case filter.Key != nil && filter.Key.Kind == models.KindPrivate:
		key := *filter.Key
		var other uuid.UUID
		switch filter.ViewerID {
		case key.UserA:
			other = key.UserB
		case key.UserB:
			other = key.UserA
		default:
			return nil, apperror.Authorization("not a participant of this conversation")
		}
		q = q.Where("kind = ? AND sender_id = ? AND receiver_id = ?", models.KindPrivate, other, filter.ViewerID)
	case filter.Key != nil && filter.Key.Kind == models.KindCircle:
		q = q.Where("kind = ? AND circle_id = ?", models.KindCircle, filter.Key.CircleID)
	default:
		return result, nil
	}

	type unreadRow struct {
		ID       uuid.UUID
		SenderID uuid.UUID
	}
	var rows []unreadRow
	if err := q.Select("id", "sender_id").Scan(&rows).Error; err != nil {
		return nil, apperror.Transient("failed to load unread messages", err)
	}
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	res := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ? AND is_read = ?", ids, false).
		Update("is_read", true)
	if res.Error != nil {
		return nil, apperror.Transient("failed to mark messages as read", res.Error)
	}

	result.Updated = res.RowsAffected
	for _, row := range rows {
		result.BySender[row.SenderID] = append(result.BySender[row.SenderID], row.ID)
	}
	return result, nil
}

func inConversation(key models.ConversationKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if key.Kind == models.KindCircle {
			return db.Where("kind = ? AND circle_id = ?", models.KindCircle, key.CircleID)
		}
		return db.Where("kind = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			models.KindPrivate, key.UserA, key.UserB, key.UserB, key.UserA)
	}
}

func visibleTo(viewerID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("NOT EXISTS (SELECT 1 FROM message_deletions md WHERE md.message_id = messages.id AND md.user_id = ?)", viewerID)
	}
}

// olderThan orders by (created_at, id), the same tie-break FetchPage sorts by.
func olderThan(c models.Cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c.ID == uuid.Nil {
			return db.Where("created_at < ?", c.CreatedAt)
		}
		return db.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
}
