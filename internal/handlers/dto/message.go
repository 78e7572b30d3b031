package dto

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
)

// Message statuses as seen by the sender.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message is the shape of a chat message on both the REST and the realtime
// path.
type Message struct {
	ID          string        `json:"id"`
	Text        string        `json:"text"`
	Sender      string        `json:"sender"`
	SenderID    string        `json:"senderId"`
	SenderImage string        `json:"senderImage"`
	IsMe        bool          `json:"isMe"`
	IsTeacher   bool          `json:"isTeacher"`
	Timestamp   int64         `json:"timestamp"`
	Time        string        `json:"time"`
	Status      string        `json:"status,omitempty"`
	ReplyTo     *ReplyPreview `json:"replyTo,omitempty"`
	CircleID    string        `json:"circleId,omitempty"`
	ReceiverID  string        `json:"receiverId,omitempty"`
}

type ReplyPreview struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Presenter turns stored rows into response shapes. Display times are
// rendered in its location.
type Presenter struct {
	loc *time.Location
}

func NewPresenter(loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.UTC
	}
	return &Presenter{loc: loc}
}

// Message shapes m for viewerID. status is copied as is; use HistoryStatus
// for history rows.
func (p *Presenter) Message(m *models.Message, viewerID uuid.UUID, status string) Message {
	out := Message{
		ID:          m.ID.String(),
		Text:        m.Content,
		Sender:      m.Sender.Name,
		SenderID:    m.SenderID.String(),
		SenderImage: AvatarURL(m.Sender.Name, m.Sender.AvatarURL),
		IsMe:        m.SenderID == viewerID,
		IsTeacher:   m.Sender.IsTeacher(),
		Timestamp:   m.CreatedAt.UnixMilli(),
		Time:        p.DisplayTime(m.CreatedAt),
		Status:      status,
	}
	if m.ReplyTo != nil {
		out.ReplyTo = &ReplyPreview{
			ID:     m.ReplyTo.ID.String(),
			Text:   m.ReplyTo.Content,
			Sender: m.ReplyTo.Sender.Name,
		}
	}
	if m.CircleID != nil {
		out.CircleID = m.CircleID.String()
	}
	if m.ReceiverID != nil {
		out.ReceiverID = m.ReceiverID.String()
	}
	return out
}

// History shapes a page of rows, marking the viewer's own messages read or
// delivered.
func (p *Presenter) History(messages []models.Message, viewerID uuid.UUID) []Message {
	out := make([]Message, len(messages))
	for i := range messages {
		out[i] = p.Message(&messages[i], viewerID, HistoryStatus(&messages[i], viewerID))
	}
	return out
}

func HistoryStatus(m *models.Message, viewerID uuid.UUID) string {
	if m.SenderID != viewerID {
		return ""
	}
	if m.IsRead {
		return StatusRead
	}
	return StatusDelivered
}

func (p *Presenter) DisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(p.loc).Format("15:04")
}

// AvatarURL returns stored when set, otherwise a generated avatar for name.
func AvatarURL(name, stored string) string {
	if stored != "" {
		return stored
	}
	return FallbackAvatar(name)
}

// FallbackAvatar is deterministic in name. Spaces are encoded as %20.
func FallbackAvatar(name string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return "https://ui-avatars.com/api/?name=" + escaped + "&background=1B5E20&color=fff"
}

// Identity returns id with the avatar fallback applied.
func Identity(id models.Identity) models.Identity {
	id.AvatarURL = AvatarURL(id.Name, id.AvatarURL)
	return id
}
