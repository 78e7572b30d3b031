package websocket

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/models"
)

const DefaultGracePeriod = 5 * time.Second

// Session is the routing entry of a user.
type Session struct {
	UserID       uuid.UUID
	ConnID       uuid.UUID
	Identity     models.Identity
	LastActiveAt time.Time
}

// Registry maps each user to one authoritative connection. A newer Register
// for the same user displaces the previous entry; the displaced connection
// is not closed, it just stops receiving pushes.
type Registry struct {
	clock clock.Clock
	grace time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	pending  map[uuid.UUID]*clock.Timer
	onExpire func(Session)
}

func NewRegistry(clk clock.Clock, grace time.Duration) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		clock:    clk,
		grace:    grace,
		sessions: make(map[uuid.UUID]*Session),
		pending:  make(map[uuid.UUID]*clock.Timer),
	}
}

// OnExpire sets the callback run after a session outlived its grace period.
// It runs outside the registry lock.
func (r *Registry) OnExpire(fn func(Session)) {
	r.mu.Lock()
	r.onExpire = fn
	r.mu.Unlock()
}

// Register installs connID as the live connection of userID and cancels any
// pending teardown. It returns the connection it replaced, if any.
func (r *Registry) Register(userID, connID uuid.UUID, identity models.Identity) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.pending[userID]; ok {
		t.Stop()
		delete(r.pending, userID)
	}

	var prev uuid.UUID
	old, replaced := r.sessions[userID]
	if replaced {
		prev = old.ConnID
	}
	r.sessions[userID] = &Session{
		UserID:       userID,
		ConnID:       connID,
		Identity:     identity,
		LastActiveAt: r.clock.Now(),
	}
	return prev, replaced
}

func (r *Registry) Lookup(userID uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return uuid.Nil, false
	}
	return s.ConnID, true
}

func (r *Registry) Get(userID uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// MarkStale starts the grace timer for connID. It is a no-op when connID is
// no longer the user's current connection.
func (r *Registry) MarkStale(userID, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || s.ConnID != connID {
		return
	}
	s.LastActiveAt = r.clock.Now()

	if t, ok := r.pending[userID]; ok {
		t.Stop()
	}
	r.pending[userID] = r.clock.AfterFunc(r.grace, func() {
		r.expire(userID, connID)
	})
}

func (r *Registry) expire(userID, connID uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok || s.ConnID != connID {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	delete(r.pending, userID)
	expired := *s
	fn := r.onExpire
	r.mu.Unlock()

	if fn != nil {
		fn(expired)
	}
}

// Online returns the users with a registered session, including those in
// their grace period.
func (r *Registry) Online() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
