package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/circlechat/internal/models"
)

func newTestHub(t *testing.T) (*Hub, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	hub := NewHub(NewRegistry(mock, 5*time.Second), NewRoomIndex(), nil, nil)
	return hub, mock
}

func attach(hub *Hub, name string) *Client {
	c := NewClient(nil, models.Identity{ID: uuid.New(), Name: name, Role: models.RoleStudent}, nil, nil)
	hub.Attach(c)
	return c
}

func reattach(hub *Hub, identity models.Identity) *Client {
	c := NewClient(nil, identity, nil, nil)
	hub.Attach(c)
	return c
}

// drain returns the envelopes queued on c so far.
func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame, ok := <-c.Outbound():
			if !ok {
				return out
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func typesOf(envs []Envelope) []EventType {
	out := make([]EventType, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

func TestBroadcastToRoomSkipsSender(t *testing.T) {
	hub, _ := newTestHub(t)
	circleID := uuid.New()
	teacher := attach(hub, "ustaz")
	student := attach(hub, "sara")
	outsider := attach(hub, "omar")
	hub.JoinRoom(teacher.UserID(), circleID)
	hub.JoinRoom(student.UserID(), circleID)

	hub.BroadcastToRoom(circleID, UserLeftCircle{CircleID: circleID, UserID: uuid.New()}, teacher.UserID())

	assert.Empty(t, drain(t, teacher))
	assert.Equal(t, []EventType{TypeUserLeftCircle}, typesOf(drain(t, student)))
	assert.Empty(t, drain(t, outsider))
}

func TestPushFollowsAuthoritativeSession(t *testing.T) {
	hub, _ := newTestHub(t)
	first := attach(hub, "sara")
	second := reattach(hub, first.Identity)

	assert.True(t, hub.SendToUser(first.UserID(), JoinedCircle{CircleID: uuid.New()}))
	assert.Empty(t, drain(t, first))
	assert.Len(t, drain(t, second), 1)

	// The displaced connection still gets direct replies.
	hub.SendTo(first, MessageError{Error: "nope"})
	assert.Equal(t, []EventType{TypeMessageError}, typesOf(drain(t, first)))
}

func TestGraceExpiryTearsDownPresence(t *testing.T) {
	hub, mock := newTestHub(t)
	circleID := uuid.New()
	sara := attach(hub, "sara")
	omar := attach(hub, "omar")
	hub.JoinRoom(sara.UserID(), circleID)
	hub.JoinRoom(omar.UserID(), circleID)

	var mu sync.Mutex
	var offline []uuid.UUID
	hub.OnOffline(func(userID uuid.UUID, _ time.Time) {
		mu.Lock()
		offline = append(offline, userID)
		mu.Unlock()
	})

	hub.Detach(sara)
	assert.Equal(t, StateGrace, sara.State())
	mock.Add(5 * time.Second)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(offline) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, StateClosed, sara.State())
	assert.False(t, hub.Registry().IsOnline(sara.UserID()))
	assert.Equal(t, []uuid.UUID{omar.UserID()}, hub.Rooms().Members(circleID))

	events := drain(t, omar)
	assert.Equal(t, []EventType{TypeUserLeftCircle, TypeUserStatus, TypeUsersOnline}, typesOf(events))

	var status UserStatus
	require.NoError(t, json.Unmarshal(events[1].Data, &status))
	assert.Equal(t, sara.UserID(), status.UserID)
	assert.Equal(t, StatusOffline, status.Status)
	require.NotNil(t, status.LastSeen)

	var online UsersOnline
	require.NoError(t, json.Unmarshal(events[2].Data, &online))
	assert.Equal(t, []uuid.UUID{omar.UserID()}, online.UserIDs)
}

func TestReconnectWithinGraceKeepsRooms(t *testing.T) {
	hub, mock := newTestHub(t)
	circleID := uuid.New()
	sara := attach(hub, "sara")
	omar := attach(hub, "omar")
	hub.JoinRoom(sara.UserID(), circleID)
	hub.JoinRoom(omar.UserID(), circleID)

	hub.Detach(sara)
	mock.Add(3 * time.Second)
	again := reattach(hub, sara.Identity)
	mock.Add(10 * time.Second)

	assert.Never(t, func() bool { return len(drain(t, omar)) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.ElementsMatch(t, []uuid.UUID{sara.UserID(), omar.UserID()}, hub.Rooms().Members(circleID))
	assert.Equal(t, StateClosed, sara.State())
	assert.Equal(t, StateAuthenticated, again.State())
}

func TestActiveMembersAppliesAvatarFallback(t *testing.T) {
	hub, _ := newTestHub(t)
	circleID := uuid.New()
	sara := attach(hub, "sara")
	hub.JoinRoom(sara.UserID(), circleID)
	hub.JoinRoom(uuid.New(), circleID) // no session

	members := hub.ActiveMembers(circleID)
	require.Len(t, members, 1)
	assert.Equal(t, sara.UserID(), members[0].ID)
	assert.Contains(t, members[0].AvatarURL, "ui-avatars.com")

	assert.NotNil(t, hub.ActiveMembers(uuid.New()))
}

func TestNotifyReadSkipsOfflineSenders(t *testing.T) {
	hub, _ := newTestHub(t)
	reader := attach(hub, "sara")
	sender := attach(hub, "omar")
	msgID := uuid.New()

	hub.NotifyRead(reader.UserID(), map[uuid.UUID][]uuid.UUID{
		sender.UserID(): {msgID},
		uuid.New():      {uuid.New()},
	})

	events := drain(t, sender)
	require.Len(t, events, 1)
	var read MessagesRead
	require.NoError(t, json.Unmarshal(events[0].Data, &read))
	assert.Equal(t, []uuid.UUID{msgID}, read.MessageIDs)
	assert.Equal(t, reader.UserID(), read.ReadBy)
	assert.Empty(t, drain(t, reader))
}

func TestSendAfterDetachIsDropped(t *testing.T) {
	hub, _ := newTestHub(t)
	sara := attach(hub, "sara")
	hub.Detach(sara)
	hub.Detach(sara)

	assert.False(t, hub.SendToUser(sara.UserID(), JoinedCircle{CircleID: uuid.New()}))
	assert.ErrorIs(t, sara.Send(JoinedCircle{}), ErrClientClosed)
}

func TestDetachOfDisplacedConnectionIsNotRetained(t *testing.T) {
	hub, mock := newTestHub(t)
	sara := attach(hub, "sara")

	var displaced []*Client
	current := sara
	for i := 0; i < 100; i++ {
		next := reattach(hub, sara.Identity)
		hub.Detach(current)
		displaced = append(displaced, current)
		current = next
	}
	mock.Add(time.Minute)

	hub.mu.RLock()
	pending := len(hub.detached)
	hub.mu.RUnlock()
	assert.Zero(t, pending)
	assert.True(t, hub.IsOnline(sara.UserID()))
	assert.Equal(t, StateAuthenticated, current.State())
	for _, c := range displaced {
		assert.Equal(t, StateClosed, c.State())
	}
	assert.True(t, hub.SendToUser(sara.UserID(), JoinedCircle{CircleID: uuid.New()}))
}
