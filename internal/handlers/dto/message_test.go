package dto

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/circlechat/internal/models"
)

func TestFallbackAvatar(t *testing.T) {
	assert.Equal(t,
		"https://ui-avatars.com/api/?name=Abdullah%20Omar&background=1B5E20&color=fff",
		FallbackAvatar("Abdullah Omar"))
	assert.Equal(t, FallbackAvatar("a&b"), FallbackAvatar("a&b"))
	assert.Contains(t, FallbackAvatar("a&b"), "name=a%26b&")
	assert.Equal(t, "https://cdn.example/me.png", AvatarURL("x", "https://cdn.example/me.png"))
}

func TestMessageShape(t *testing.T) {
	p := NewPresenter(time.FixedZone("AST", 3*60*60))

	teacher := models.User{ID: uuid.New(), Name: "Ustaz Ali", Role: models.RoleTeacher}
	student := models.User{ID: uuid.New(), Name: "Sara", Role: models.RoleStudent}
	circleID := uuid.New()
	created := time.Date(2024, 3, 1, 17, 5, 0, 0, time.UTC)

	original := &models.Message{ID: uuid.New(), SenderID: student.ID, Sender: student, Content: "question"}
	msg := &models.Message{
		ID:        uuid.New(),
		SenderID:  teacher.ID,
		Sender:    teacher,
		Content:   "answer",
		Kind:      models.KindCircle,
		CircleID:  &circleID,
		CreatedAt: created,
		ReplyTo:   original,
	}

	out := p.Message(msg, student.ID, "")
	assert.Equal(t, msg.ID.String(), out.ID)
	assert.Equal(t, "answer", out.Text)
	assert.Equal(t, "Ustaz Ali", out.Sender)
	assert.False(t, out.IsMe)
	assert.True(t, out.IsTeacher)
	assert.Equal(t, created.UnixMilli(), out.Timestamp)
	assert.Equal(t, "20:05", out.Time)
	assert.Equal(t, circleID.String(), out.CircleID)
	assert.Empty(t, out.ReceiverID)
	assert.Equal(t, FallbackAvatar("Ustaz Ali"), out.SenderImage)
	require.NotNil(t, out.ReplyTo)
	assert.Equal(t, ReplyPreview{ID: original.ID.String(), Text: "question", Sender: "Sara"}, *out.ReplyTo)

	mine := p.Message(msg, teacher.ID, StatusSent)
	assert.True(t, mine.IsMe)
	assert.Equal(t, StatusSent, mine.Status)
}

func TestHistoryStatus(t *testing.T) {
	me, other := uuid.New(), uuid.New()

	assert.Equal(t, StatusDelivered, HistoryStatus(&models.Message{SenderID: me}, me))
	assert.Equal(t, StatusRead, HistoryStatus(&models.Message{SenderID: me, IsRead: true}, me))
	assert.Empty(t, HistoryStatus(&models.Message{SenderID: other, IsRead: true}, me))
}

func TestCircleChatWithoutMessages(t *testing.T) {
	p := NewPresenter(nil)
	teacher := models.User{ID: uuid.New(), Name: "Ustaz Ali"}
	circle := &models.StudyCircle{ID: uuid.New(), Name: "Hifz", TeacherID: teacher.ID, Teacher: teacher}

	chat := p.CircleChat(models.ConversationSummary{Kind: models.KindCircle, CircleID: circle.ID}, circle, teacher.ID)
	assert.Equal(t, NoMessagesYet, chat.LastMessage)
	assert.Empty(t, chat.Time)
	assert.True(t, chat.IsOnline)
	assert.True(t, chat.IsTeacher)
	assert.Equal(t, "Ustaz Ali", chat.TeacherName)
	assert.Equal(t, FallbackAvatar("Hifz"), chat.AvatarURL)
}

func TestPageCursor(t *testing.T) {
	p := NewPresenter(nil)

	last := p.Page(&models.Page{TotalCount: 2}, uuid.New())
	assert.Nil(t, last.NextCursor)
	assert.NotNil(t, last.Messages)

	id := uuid.NewString()
	more := p.Page(&models.Page{HasMore: true, NextCursor: id}, uuid.New())
	require.NotNil(t, more.NextCursor)
	assert.Equal(t, id, *more.NextCursor)
}
