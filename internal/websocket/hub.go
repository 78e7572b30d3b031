package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/metrics"
	"github.com/thereayou/circlechat/internal/models"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Hub routes events to live clients. All fan-out goes through the Registry,
// so a user receives pushes on their current connection only.
type Hub struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *Registry
	rooms    *RoomIndex

	// presence orders registration against grace expiry.
	presence sync.Mutex

	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	detached map[uuid.UUID]*Client

	onOffline func(userID uuid.UUID, lastSeen time.Time)
}

func NewHub(registry *Registry, rooms *RoomIndex, log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:      log.With("component", "hub"),
		metrics:  m,
		registry: registry,
		rooms:    rooms,
		clients:  make(map[uuid.UUID]*Client),
		detached: make(map[uuid.UUID]*Client),
	}
	registry.OnExpire(h.expireSession)
	return h
}

// OnOffline sets a callback run after a user's grace period ran out.
func (h *Hub) OnOffline(fn func(userID uuid.UUID, lastSeen time.Time)) {
	h.mu.Lock()
	h.onOffline = fn
	h.mu.Unlock()
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Rooms() *RoomIndex { return h.rooms }

// Attach makes c the user's authoritative connection.
func (h *Hub) Attach(c *Client) {
	h.presence.Lock()
	defer h.presence.Unlock()

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	prev, replaced := h.registry.Register(c.UserID(), c.ID, c.Identity)
	if replaced {
		h.mu.Lock()
		if old, ok := h.detached[prev]; ok {
			old.SetState(StateClosed)
			delete(h.detached, prev)
		}
		h.mu.Unlock()
		h.log.Debug("session replaced", "user_id", c.UserID(), "prev_conn_id", prev, "conn_id", c.ID)
	}
	c.SetState(StateAuthenticated)
	h.metrics.SetSessions(h.registry.Len())
}

// Detach stops routing to c and starts the grace period of its session.
// A connection that was already displaced by a newer one is closed right
// away; no expiry will ever run for it.
func (h *Hub) Detach(c *Client) {
	h.presence.Lock()
	defer h.presence.Unlock()

	connID, registered := h.registry.Lookup(c.UserID())
	current := registered && connID == c.ID

	h.mu.Lock()
	_, attached := h.clients[c.ID]
	delete(h.clients, c.ID)
	if attached && current {
		h.detached[c.ID] = c
	}
	h.mu.Unlock()

	c.close()
	if !attached {
		return
	}
	if !current {
		c.SetState(StateClosed)
		return
	}
	c.SetState(StateGrace)
	h.registry.MarkStale(c.UserID(), c.ID)
}

func (h *Hub) expireSession(s Session) {
	h.presence.Lock()
	defer h.presence.Unlock()

	h.mu.Lock()
	if c, ok := h.detached[s.ConnID]; ok {
		c.SetState(StateClosed)
		delete(h.detached, s.ConnID)
	}
	onOffline := h.onOffline
	h.mu.Unlock()

	// A registration that won the race against this timer keeps the rooms.
	if h.registry.IsOnline(s.UserID) {
		return
	}

	for _, circleID := range h.rooms.LeaveAll(s.UserID) {
		h.BroadcastToRoom(circleID, UserLeftCircle{CircleID: circleID, UserID: s.UserID}, s.UserID)
	}

	lastSeen := s.LastActiveAt.UTC()
	h.Broadcast(UserStatus{UserID: s.UserID, Status: StatusOffline, LastSeen: &lastSeen})
	h.Broadcast(UsersOnline{UserIDs: h.registry.Online()})

	h.metrics.SessionExpired()
	h.metrics.SetSessions(h.registry.Len())
	h.log.Info("user offline", "user_id", s.UserID)

	if onOffline != nil {
		onOffline(s.UserID, lastSeen)
	}
}

// SendTo queues ev on c directly, whether or not c is authoritative.
func (h *Hub) SendTo(c *Client, ev Event) {
	frame, eventType, err := h.encode(ev)
	if err != nil {
		return
	}
	h.deliver(c, eventType, frame)
}

// SendToUser pushes ev to the user's current connection. It reports whether
// the frame was queued.
func (h *Hub) SendToUser(userID uuid.UUID, ev Event) bool {
	frame, eventType, err := h.encode(ev)
	if err != nil {
		return false
	}
	return h.sendFrame(userID, eventType, frame)
}

// Broadcast pushes ev to every registered user.
func (h *Hub) Broadcast(ev Event) {
	frame, eventType, err := h.encode(ev)
	if err != nil {
		return
	}
	for _, userID := range h.registry.Online() {
		h.sendFrame(userID, eventType, frame)
	}
}

// BroadcastToRoom pushes ev to every live member of the circle except
// except. Pass uuid.Nil to include everyone.
func (h *Hub) BroadcastToRoom(circleID uuid.UUID, ev Event, except uuid.UUID) {
	frame, eventType, err := h.encode(ev)
	if err != nil {
		return
	}
	for _, userID := range h.rooms.Members(circleID) {
		if userID == except {
			continue
		}
		h.sendFrame(userID, eventType, frame)
	}
}

// JoinRoom adds the user to the circle's live set and reports whether it
// was newly added.
func (h *Hub) JoinRoom(userID, circleID uuid.UUID) bool {
	return h.rooms.Join(circleID, userID)
}

func (h *Hub) LeaveRoom(userID, circleID uuid.UUID) bool {
	return h.rooms.Leave(circleID, userID)
}

// ActiveMembers returns the identities of the circle's live members.
func (h *Hub) ActiveMembers(circleID uuid.UUID) []models.Identity {
	members := make([]models.Identity, 0)
	for _, userID := range h.rooms.Members(circleID) {
		if s, ok := h.registry.Get(userID); ok {
			members = append(members, dto.Identity(s.Identity))
		}
	}
	return members
}

func (h *Hub) OnlineUsers() []uuid.UUID {
	return h.registry.Online()
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.registry.IsOnline(userID)
}

// NotifyRead tells each sender with a live session which of their messages
// readBy has read.
func (h *Hub) NotifyRead(readBy uuid.UUID, bySender map[uuid.UUID][]uuid.UUID) {
	for senderID, ids := range bySender {
		if senderID == readBy || len(ids) == 0 {
			continue
		}
		h.SendToUser(senderID, MessagesRead{MessageIDs: ids, ReadBy: readBy})
	}
}

// Stop closes every client. Sessions are dropped without presence events.
func (h *Hub) Stop() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.SetState(StateClosed)
		c.close()
	}
}

func (h *Hub) encode(ev Event) ([]byte, EventType, error) {
	eventType, err := TypeOf(ev)
	if err != nil {
		h.log.Error("encode event", "error", err)
		return nil, "", err
	}
	frame, err := Encode(ev)
	if err != nil {
		h.log.Error("encode event", "type", eventType, "error", err)
		return nil, "", err
	}
	return frame, eventType, nil
}

func (h *Hub) sendFrame(userID uuid.UUID, eventType EventType, frame []byte) bool {
	connID, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver(c, eventType, frame)
}

func (h *Hub) deliver(c *Client, eventType EventType, frame []byte) bool {
	if err := c.enqueue(frame); err != nil {
		h.metrics.PushDropped()
		if errors.Is(err, ErrClientQueueFull) {
			h.log.Warn("client send queue full", "conn_id", c.ID, "type", eventType)
		}
		return false
	}
	h.metrics.EventOut(string(eventType))
	return true
}
