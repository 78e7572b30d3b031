package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/apperror"
)

const DefaultMaxPageSize = 100

type HistoryConfig struct {
	PageSize    int
	MaxPageSize int
}

// HistoryService is the pull path: chat list, paginated history, deletes
// and bulk read. It authorizes every call itself.
type HistoryService struct {
	store     MessageStore
	circles   CircleDirectory
	users     IdentityDirectory
	presence  Presence
	presenter *dto.Presenter
	cfg       HistoryConfig
	log       *slog.Logger
}

func NewHistoryService(
	store MessageStore,
	circles CircleDirectory,
	users IdentityDirectory,
	presence Presence,
	presenter *dto.Presenter,
	cfg HistoryConfig,
	log *slog.Logger,
) *HistoryService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = models.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.PageSize > cfg.MaxPageSize {
		cfg.PageSize = cfg.MaxPageSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &HistoryService{
		store:     store,
		circles:   circles,
		users:     users,
		presence:  presence,
		presenter: presenter,
		cfg:       cfg,
		log:       log.With("component", "history"),
	}
}

func (s *HistoryService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.PageSize
	}
	if limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return limit
}

// ChatList returns the viewer's private conversations and circles, each
// ordered by latest activity.
func (s *HistoryService) ChatList(ctx context.Context, viewerID uuid.UUID) (*dto.ChatList, error) {
	circles, err := s.circles.CirclesForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.StudyCircle, len(circles))
	ids := make([]uuid.UUID, len(circles))
	for i := range circles {
		byID[circles[i].ID] = &circles[i]
		ids[i] = circles[i].ID
	}

	summaries, err := s.store.ChatListSummary(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	list := &dto.ChatList{
		PrivateChats: make([]dto.PrivateChat, 0),
		CircleChats:  make([]dto.CircleChat, 0, len(circles)),
	}
	for _, summary := range summaries {
		switch summary.Kind {
		case models.KindPrivate:
			counterpart, err := s.users.GetUser(ctx, summary.CounterpartID)
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			online := s.presence != nil && s.presence.IsOnline(counterpart.ID)
			list.PrivateChats = append(list.PrivateChats, s.presenter.PrivateChat(summary, counterpart, viewerID, online))
		case models.KindCircle:
			if circle, ok := byID[summary.CircleID]; ok {
				list.CircleChats = append(list.CircleChats, s.presenter.CircleChat(summary, circle, viewerID))
			}
		}
	}
	return list, nil
}

// PrivateHistory returns a page of the conversation with otherID and marks
// what otherID sent to the viewer as read.
func (s *HistoryService) PrivateHistory(ctx context.Context, viewerID, otherID uuid.UUID, limit int, before string) (*dto.Page, error) {
	if _, err := s.users.GetUser(ctx, otherID); err != nil {
		return nil, err
	}
	key := models.PrivateKey(viewerID, otherID)
	return s.history(ctx, key, viewerID, limit, before)
}

// CircleHistory returns a page of the circle stream. The viewer must teach
// or belong to the circle.
func (s *HistoryService) CircleHistory(ctx context.Context, viewerID, circleID uuid.UUID, limit int, before string) (*dto.Page, error) {
	if _, err := s.authorizeCircle(ctx, viewerID, circleID); err != nil {
		return nil, err
	}
	return s.history(ctx, models.CircleKey(circleID), viewerID, limit, before)
}

func (s *HistoryService) history(ctx context.Context, key models.ConversationKey, viewerID uuid.UUID, limit int, before string) (*dto.Page, error) {
	page, err := s.store.FetchPage(ctx, key, viewerID, s.clampLimit(limit), before)
	if err != nil {
		return nil, err
	}
	out := s.presenter.Page(page, viewerID)

	// The page is already read; a failed flag update only costs a stale
	// unread counter.
	if _, err := s.markRead(ctx, models.ReadFilter{ViewerID: viewerID, Key: &key}); err != nil {
		s.log.Warn("mark history read", "viewer_id", viewerID, "error", err)
	}
	return &out, nil
}

// DeletePrivate hides the conversation from the viewer only.
func (s *HistoryService) DeletePrivate(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	return s.store.SoftDelete(ctx, models.PrivateKey(viewerID, otherID), viewerID)
}

// DeletePrivateForAll removes the conversation for both participants.
func (s *HistoryService) DeletePrivateForAll(ctx context.Context, viewerID, otherID uuid.UUID) (int64, error) {
	if viewerID == otherID {
		return 0, apperror.Validation("cannot delete a conversation with yourself")
	}
	return s.store.HardDeleteForAll(ctx, models.PrivateKey(viewerID, otherID))
}

func (s *HistoryService) DeleteCircle(ctx context.Context, viewerID, circleID uuid.UUID) (int64, error) {
	if _, err := s.authorizeCircle(ctx, viewerID, circleID); err != nil {
		return 0, err
	}
	return s.store.SoftDelete(ctx, models.CircleKey(circleID), viewerID)
}

// DeleteCircleForAll is reserved to the circle's teacher.
func (s *HistoryService) DeleteCircleForAll(ctx context.Context, viewerID, circleID uuid.UUID) (int64, error) {
	circle, err := s.authorizeCircle(ctx, viewerID, circleID)
	if err != nil {
		return 0, err
	}
	if !circle.IsTeacher(viewerID) {
		return 0, apperror.Authorization("only the circle teacher can delete the chat for everyone")
	}
	return s.store.HardDeleteForAll(ctx, models.CircleKey(circleID))
}

// ReadRequest selects what to mark read: explicit ids, a private
// conversation or a circle.
type ReadRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
	UserID     *uuid.UUID  `json:"userId"`
	CircleID   *uuid.UUID  `json:"circleId"`
}

// MarkRead flips the selected inbound messages and notifies their senders.
func (s *HistoryService) MarkRead(ctx context.Context, viewerID uuid.UUID, req ReadRequest) (*models.ReadResult, error) {
	filter := models.ReadFilter{ViewerID: viewerID}
	switch {
	case len(req.MessageIDs) > 0:
		filter.MessageIDs = req.MessageIDs
	case req.UserID != nil:
		key := models.PrivateKey(viewerID, *req.UserID)
		filter.Key = &key
	case req.CircleID != nil:
		if _, err := s.authorizeCircle(ctx, viewerID, *req.CircleID); err != nil {
			return nil, err
		}
		key := models.CircleKey(*req.CircleID)
		filter.Key = &key
	default:
		return nil, apperror.Validation("messageIds, userId or circleId is required")
	}
	return s.markRead(ctx, filter)
}

func (s *HistoryService) markRead(ctx context.Context, filter models.ReadFilter) (*models.ReadResult, error) {
	res, err := s.store.MarkRead(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.presence != nil && res.Updated > 0 {
		s.presence.NotifyRead(filter.ViewerID, res.BySender)
	}
	return res, nil
}

func (s *HistoryService) authorizeCircle(ctx context.Context, viewerID, circleID uuid.UUID) (*models.StudyCircle, error) {
	circle, err := s.circles.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.CanAccess(viewerID) {
		return nil, apperror.Authorization("you are not a member of this circle")
	}
	return circle, nil
}
