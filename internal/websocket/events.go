package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/models"
)

// EventType names a frame on the realtime protocol.
type EventType string

// Inbound
const (
	TypeJoinRoom               EventType = "joinRoom"
	TypeLeaveRoom              EventType = "leaveRoom"
	TypePrivateMessage         EventType = "privateMessage"
	TypeCircleMessage          EventType = "circleMessage"
	TypeReplyToMessage         EventType = "replyToMessage"
	TypeMarkAsRead             EventType = "markAsRead"
	TypeGetActiveCircleMembers EventType = "getActiveCircleMembers"
)

// Outbound
const (
	TypeUserStatus           EventType = "userStatus"
	TypeUsersOnline          EventType = "usersOnline"
	TypeJoinedCircle         EventType = "joinedCircle"
	TypeUserJoinedCircle     EventType = "userJoinedCircle"
	TypeUserLeftCircle       EventType = "userLeftCircle"
	TypeMessageSent          EventType = "messageSent"
	TypeMessageError         EventType = "messageError"
	TypeMessagesMarkedAsRead EventType = "messagesMarkedAsRead"
	TypeMessagesRead         EventType = "messagesRead"
	TypeActiveCircleMembers  EventType = "activeCircleMembers"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound payloads.

type RoomRequest struct {
	CircleID uuid.UUID `json:"circleId"`
}

type PrivateMessageRequest struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	Content    string    `json:"content"`
}

type CircleMessageRequest struct {
	CircleID uuid.UUID `json:"circleId"`
	Content  string    `json:"content"`
}

type ReplyRequest struct {
	MessageID uuid.UUID `json:"messageId"`
	Content   string    `json:"content"`
}

type MarkAsReadRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
}

// Event is the closed set of outbound payloads. Every implementation is
// listed in Encode.
type Event interface {
	event()
}

type UserStatus struct {
	UserID   uuid.UUID        `json:"userId"`
	Status   string           `json:"status"`
	User     *models.Identity `json:"user,omitempty"`
	LastSeen *time.Time       `json:"lastSeen,omitempty"`
}

type UsersOnline struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type JoinedCircle struct {
	CircleID uuid.UUID `json:"circleId"`
}

type UserJoinedCircle struct {
	CircleID uuid.UUID       `json:"circleId"`
	User     models.Identity `json:"user"`
}

type UserLeftCircle struct {
	CircleID uuid.UUID `json:"circleId"`
	UserID   uuid.UUID `json:"userId"`
}

// PrivateMessage is pushed to the receiver of a private message or reply.
type PrivateMessage struct {
	dto.Message
}

// CircleMessage is pushed to every live room member except the sender.
type CircleMessage struct {
	dto.Message
}

// MessageSent confirms a send to its author.
type MessageSent struct {
	dto.Message
}

type MessageError struct {
	Error string `json:"error"`
}

type MessagesMarkedAsRead struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
}

type MessagesRead struct {
	MessageIDs []uuid.UUID `json:"messageIds"`
	ReadBy     uuid.UUID   `json:"readBy"`
}

type ActiveCircleMembers struct {
	CircleID uuid.UUID         `json:"circleId"`
	Members  []models.Identity `json:"members"`
}

func (UserStatus) event()           {}
func (UsersOnline) event()          {}
func (JoinedCircle) event()         {}
func (UserJoinedCircle) event()     {}
func (UserLeftCircle) event()       {}
func (PrivateMessage) event()       {}
func (CircleMessage) event()        {}
func (MessageSent) event()          {}
func (MessageError) event()         {}
func (MessagesMarkedAsRead) event() {}
func (MessagesRead) event()         {}
func (ActiveCircleMembers) event()  {}

// TypeOf returns the wire name of ev.
func TypeOf(ev Event) (EventType, error) {
	switch ev.(type) {
	case UserStatus:
		return TypeUserStatus, nil
	case UsersOnline:
		return TypeUsersOnline, nil
	case JoinedCircle:
		return TypeJoinedCircle, nil
	case UserJoinedCircle:
		return TypeUserJoinedCircle, nil
	case UserLeftCircle:
		return TypeUserLeftCircle, nil
	case PrivateMessage:
		return TypePrivateMessage, nil
	case CircleMessage:
		return TypeCircleMessage, nil
	case MessageSent:
		return TypeMessageSent, nil
	case MessageError:
		return TypeMessageError, nil
	case MessagesMarkedAsRead:
		return TypeMessagesMarkedAsRead, nil
	case MessagesRead:
		return TypeMessagesRead, nil
	case ActiveCircleMembers:
		return TypeActiveCircleMembers, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// Encode renders ev as an Envelope frame.
func Encode(ev Event) ([]byte, error) {
	eventType, err := TypeOf(ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// Decode parses an inbound frame's payload into dst.
func Decode(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return ErrInvalidMessage
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
