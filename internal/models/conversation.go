package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is the history page size used when none is requested.
const DefaultPageSize = 30

// ConversationKey names a message stream: an unordered participant pair for
// private conversations or a circle id.
type ConversationKey struct {
	Kind     ConversationKind
	UserA    uuid.UUID
	UserB    uuid.UUID
	CircleID uuid.UUID
}

// PrivateKey normalises the pair so PrivateKey(a, b) == PrivateKey(b, a).
func PrivateKey(a, b uuid.UUID) ConversationKey {
	if b.String() < a.String() {
		a, b = b, a
	}
	return ConversationKey{Kind: KindPrivate, UserA: a, UserB: b}
}

func CircleKey(circleID uuid.UUID) ConversationKey {
	return ConversationKey{Kind: KindCircle, CircleID: circleID}
}

// Cursor is the exclusive upper bound of the next page. A zero ID means the
// bound is a raw timestamp.
type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Page is one slice of a conversation, newest first.
type Page struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
	TotalCount int64
}

// ConversationSummary is one chat-list row.
type ConversationSummary struct {
	Kind          ConversationKind
	CounterpartID uuid.UUID
	CircleID      uuid.UUID
	LastMessage   *Message
	UnreadCount   int64
}

// ReadFilter selects the inbound rows a mark-read call covers. Either
// MessageIDs or Key must be set.
type ReadFilter struct {
	ViewerID   uuid.UUID
	MessageIDs []uuid.UUID
	Key        *ConversationKey
}

// ReadResult groups flipped message ids by their sender so receipts can be
// routed.
type ReadResult struct {
	Updated  int64
	BySender map[uuid.UUID][]uuid.UUID
}
