package websocket

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/circlechat/internal/models"
)

func TestRegisterReplacesSession(t *testing.T) {
	r := NewRegistry(clock.NewMock(), 5*time.Second)
	userID := uuid.New()
	first, second := uuid.New(), uuid.New()

	_, replaced := r.Register(userID, first, models.Identity{ID: userID})
	assert.False(t, replaced)

	prev, replaced := r.Register(userID, second, models.Identity{ID: userID})
	assert.True(t, replaced)
	assert.Equal(t, first, prev)

	connID, ok := r.Lookup(userID)
	require.True(t, ok)
	assert.Equal(t, second, connID)
	assert.Equal(t, 1, r.Len())
}

func TestGraceExpiry(t *testing.T) {
	mock := clock.NewMock()
	r := NewRegistry(mock, 5*time.Second)
	userID, connID := uuid.New(), uuid.New()

	var expired atomic.Value
	r.OnExpire(func(s Session) { expired.Store(s) })

	r.Register(userID, connID, models.Identity{ID: userID, Name: "sara"})
	r.MarkStale(userID, connID)

	mock.Add(4 * time.Second)
	assert.True(t, r.IsOnline(userID))

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return expired.Load() != nil }, time.Second, time.Millisecond)

	s := expired.Load().(Session)
	assert.Equal(t, connID, s.ConnID)
	assert.Equal(t, "sara", s.Identity.Name)
	assert.False(t, r.IsOnline(userID))
}

func TestReconnectWithinGraceCancelsTeardown(t *testing.T) {
	mock := clock.NewMock()
	r := NewRegistry(mock, 5*time.Second)
	userID := uuid.New()
	first, second := uuid.New(), uuid.New()

	var calls atomic.Int32
	r.OnExpire(func(Session) { calls.Add(1) })

	r.Register(userID, first, models.Identity{ID: userID})
	r.MarkStale(userID, first)
	mock.Add(3 * time.Second)
	r.Register(userID, second, models.Identity{ID: userID})
	mock.Add(10 * time.Second)

	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, time.Millisecond)
	connID, ok := r.Lookup(userID)
	require.True(t, ok)
	assert.Equal(t, second, connID)
}

func TestMarkStaleIgnoresReplacedConnection(t *testing.T) {
	mock := clock.NewMock()
	r := NewRegistry(mock, 5*time.Second)
	userID := uuid.New()
	oldConn, newConn := uuid.New(), uuid.New()

	var calls atomic.Int32
	r.OnExpire(func(Session) { calls.Add(1) })

	r.Register(userID, oldConn, models.Identity{ID: userID})
	r.Register(userID, newConn, models.Identity{ID: userID})
	r.MarkStale(userID, oldConn)
	mock.Add(time.Minute)

	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, time.Millisecond)
	assert.True(t, r.IsOnline(userID))
}

func TestExpiryChecksConnectionAgain(t *testing.T) {
	r := NewRegistry(clock.NewMock(), time.Second)
	userID := uuid.New()
	oldConn, newConn := uuid.New(), uuid.New()

	var calls atomic.Int32
	r.OnExpire(func(Session) { calls.Add(1) })

	// Timer already fired for oldConn while newConn registered.
	r.Register(userID, newConn, models.Identity{ID: userID})
	r.expire(userID, oldConn)

	assert.Zero(t, calls.Load())
	assert.True(t, r.IsOnline(userID))
}

func TestOnlineIsSorted(t *testing.T) {
	r := NewRegistry(clock.NewMock(), time.Second)
	for i := 0; i < 5; i++ {
		r.Register(uuid.New(), uuid.New(), models.Identity{})
	}

	online := r.Online()
	require.Len(t, online, 5)
	for i := 1; i < len(online); i++ {
		assert.Less(t, online[i-1].String(), online[i].String())
	}
}
