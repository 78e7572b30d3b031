package dto

import (
	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
)

const NoMessagesYet = "no messages yet"

type ChatList struct {
	PrivateChats []PrivateChat `json:"privateChats"`
	CircleChats  []CircleChat  `json:"circleChats"`
}

type PrivateChat struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Type              string `json:"type"`
	LastMessage       string `json:"lastMessage"`
	Time              string `json:"time"`
	Timestamp         int64  `json:"timestamp"`
	UnreadCount       int64  `json:"unreadCount"`
	AvatarURL         string `json:"avatarUrl"`
	IsOnline          bool   `json:"isOnline"`
	IsTeacher         bool   `json:"isTeacher"`
	LastMessageStatus string `json:"lastMessageStatus,omitempty"`
}

type CircleChat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	LastMessage string `json:"lastMessage"`
	Time        string `json:"time"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	UnreadCount int64  `json:"unreadCount"`
	AvatarURL   string `json:"avatarUrl"`
	IsOnline    bool   `json:"isOnline"`
	IsTeacher   bool   `json:"isTeacher"`
	TeacherName string `json:"teacherName"`
}

// Page is a shaped history page. NextCursor is nil on the last page.
type Page struct {
	Messages   []Message `json:"data"`
	HasMore    bool      `json:"hasMore"`
	NextCursor *string   `json:"nextCursor"`
	TotalCount int64     `json:"totalCount"`
}

func (p *Presenter) Page(page *models.Page, viewerID uuid.UUID) Page {
	out := Page{
		Messages:   p.History(page.Messages, viewerID),
		HasMore:    page.HasMore,
		TotalCount: page.TotalCount,
	}
	if page.NextCursor != "" {
		cursor := page.NextCursor
		out.NextCursor = &cursor
	}
	return out
}

func (p *Presenter) PrivateChat(s models.ConversationSummary, counterpart *models.User, viewerID uuid.UUID, online bool) PrivateChat {
	chat := PrivateChat{
		ID:          counterpart.ID.String(),
		Name:        counterpart.Name,
		Type:        string(models.KindPrivate),
		UnreadCount: s.UnreadCount,
		AvatarURL:   AvatarURL(counterpart.Name, counterpart.AvatarURL),
		IsOnline:    online,
		IsTeacher:   counterpart.IsTeacher(),
	}
	if last := s.LastMessage; last != nil {
		chat.LastMessage = last.Content
		chat.Time = p.DisplayTime(last.CreatedAt)
		chat.Timestamp = last.CreatedAt.UnixMilli()
		chat.LastMessageStatus = HistoryStatus(last, viewerID)
	}
	return chat
}

// CircleChat shapes a circle row. Circles are always reported online.
func (p *Presenter) CircleChat(s models.ConversationSummary, circle *models.StudyCircle, viewerID uuid.UUID) CircleChat {
	chat := CircleChat{
		ID:          circle.ID.String(),
		Name:        circle.Name,
		Type:        string(models.KindCircle),
		LastMessage: NoMessagesYet,
		UnreadCount: s.UnreadCount,
		AvatarURL:   FallbackAvatar(circle.Name),
		IsOnline:    true,
		IsTeacher:   circle.IsTeacher(viewerID),
		TeacherName: circle.Teacher.Name,
	}
	if last := s.LastMessage; last != nil {
		chat.LastMessage = last.Content
		chat.Time = p.DisplayTime(last.CreatedAt)
		chat.Timestamp = last.CreatedAt.UnixMilli()
	}
	return chat
}
