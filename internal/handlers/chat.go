package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/middleware"
	"github.com/thereayou/circlechat/internal/services"
)

// ChatHandler is the REST face of the history service.
type ChatHandler struct {
	history *services.HistoryService
	log     *slog.Logger
}

func NewChatHandler(history *services.HistoryService, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{history: history, log: log.With("component", "chats")}
}

// GetChats serves GET /chats.
func (h *ChatHandler) GetChats(c *gin.Context) {
	identity := middleware.MustIdentity(c)

	list, err := h.history.ChatList(c.Request.Context(), identity.ID)
	if err != nil {
		respondError(c, h.log, err, "failed to load chats")
		return
	}
	respondOK(c, list)
}

// GetPrivateHistory serves GET /chats/private/:userId?limit=&before=.
func (h *ChatHandler) GetPrivateHistory(c *gin.Context) {
	identity := middleware.MustIdentity(c)
	otherID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	page, err := h.history.PrivateHistory(c.Request.Context(), identity.ID, otherID, limit, c.Query("before"))
	if err != nil {
		respondError(c, h.log, err, "failed to load messages")
		return
	}
	respondPage(c, page)
}

// GetCircleHistory serves GET /chats/circle/:circleId?limit=&before=.
func (h *ChatHandler) GetCircleHistory(c *gin.Context) {
	identity := middleware.MustIdentity(c)
	circleID, ok := parseID(c, "circleId")
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	page, err := h.history.CircleHistory(c.Request.Context(), identity.ID, circleID, limit, c.Query("before"))
	if err != nil {
		respondError(c, h.log, err, "failed to load messages")
		return
	}
	respondPage(c, page)
}

// DeletePrivateChat serves DELETE /chats/private/:userId.
func (h *ChatHandler) DeletePrivateChat(c *gin.Context) {
	h.delete(c, "userId", h.history.DeletePrivate, "chat deleted")
}

// DeletePrivateChatForAll serves DELETE /chats/private/:userId/all.
func (h *ChatHandler) DeletePrivateChatForAll(c *gin.Context) {
	h.delete(c, "userId", h.history.DeletePrivateForAll, "chat deleted for everyone")
}

// DeleteCircleChat serves DELETE /chats/circle/:circleId.
func (h *ChatHandler) DeleteCircleChat(c *gin.Context) {
	h.delete(c, "circleId", h.history.DeleteCircle, "chat deleted")
}

// DeleteCircleChatForAll serves DELETE /chats/circle/:circleId/all.
func (h *ChatHandler) DeleteCircleChatForAll(c *gin.Context) {
	h.delete(c, "circleId", h.history.DeleteCircleForAll, "chat deleted for everyone")
}

type deleteFunc func(ctx context.Context, viewerID, targetID uuid.UUID) (int64, error)

func (h *ChatHandler) delete(c *gin.Context, param string, fn deleteFunc, message string) {
	identity := middleware.MustIdentity(c)
	targetID, ok := parseID(c, param)
	if !ok {
		return
	}

	n, err := fn(c.Request.Context(), identity.ID, targetID)
	if err != nil {
		respondError(c, h.log, err, "failed to delete chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message, "deleted": n})
}

// MarkAsRead serves POST /chats/read.
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	identity := middleware.MustIdentity(c)

	var req services.ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.history.MarkRead(c.Request.Context(), identity.ID, req)
	if err != nil {
		respondError(c, h.log, err, "failed to mark messages as read")
		return
	}
	respondOK(c, gin.H{"updated": res.Updated})
}

// respondPage flattens the pagination envelope next to data.
func respondPage(c *gin.Context, page *dto.Page) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       page.Messages,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
		"totalCount": page.TotalCount,
	})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit returns 0 when limit is absent; the service applies its
// default.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return 0, false
	}
	return limit, true
}
