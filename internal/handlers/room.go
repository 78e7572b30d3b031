package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/middleware"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/internal/services"
	"github.com/thereayou/circlechat/internal/websocket"
	"github.com/thereayou/circlechat/pkg/apperror"
)

// RoomHandler exposes the live presence of circle rooms over REST.
type RoomHandler struct {
	circles services.CircleDirectory
	hub     *websocket.Hub
	log     *slog.Logger
}

func NewRoomHandler(circles services.CircleDirectory, hub *websocket.Hub, log *slog.Logger) *RoomHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoomHandler{circles: circles, hub: hub, log: log.With("component", "rooms")}
}

// GetActiveMembers returns who is connected to the circle right now. This
// is not the membership list.
func (h *RoomHandler) GetActiveMembers(c *gin.Context) {
	identity := middleware.MustIdentity(c)
	circleID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := h.authorize(c, identity.ID, circleID); err != nil {
		respondError(c, h.log, err, "failed to load active members")
		return
	}

	respondOK(c, gin.H{
		"circleId": circleID,
		"source":   "live",
		"members":  h.hub.ActiveMembers(circleID),
	})
}

// GetMembers returns the persisted membership annotated with live presence.
func (h *RoomHandler) GetMembers(c *gin.Context) {
	identity := middleware.MustIdentity(c)
	circleID, ok := parseID(c, "id")
	if !ok {
		return
	}
	circle, err := h.authorize(c, identity.ID, circleID)
	if err != nil {
		respondError(c, h.log, err, "failed to load members")
		return
	}

	members := make([]gin.H, 0, len(circle.Members)+1)
	members = append(members, gin.H{
		"id":        circle.Teacher.ID,
		"name":      circle.Teacher.Name,
		"avatarUrl": dto.AvatarURL(circle.Teacher.Name, circle.Teacher.AvatarURL),
		"isTeacher": true,
		"isOnline":  h.hub.Rooms().Contains(circleID, circle.Teacher.ID),
	})
	for _, m := range circle.Members {
		if m.ID == circle.TeacherID {
			continue
		}
		members = append(members, gin.H{
			"id":        m.ID,
			"name":      m.Name,
			"avatarUrl": dto.AvatarURL(m.Name, m.AvatarURL),
			"isTeacher": false,
			"isOnline":  h.hub.Rooms().Contains(circleID, m.ID),
		})
	}

	respondOK(c, gin.H{"circleId": circleID, "members": members})
}

func (h *RoomHandler) authorize(c *gin.Context, userID, circleID uuid.UUID) (*models.StudyCircle, error) {
	circle, err := h.circles.GetCircle(c.Request.Context(), circleID)
	if err != nil {
		return nil, err
	}
	if !circle.CanAccess(userID) {
		return nil, apperror.Authorization("you are not a member of this circle")
	}
	return circle, nil
}
