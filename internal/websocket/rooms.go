package websocket

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RoomIndex tracks which users are live in which circle. It caches presence
// only; circle membership itself lives in the database.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

// Join reports whether userID was newly added.
func (ri *RoomIndex) Join(circleID, userID uuid.UUID) bool {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	room, ok := ri.rooms[circleID]
	if !ok {
		room = make(map[uuid.UUID]struct{})
		ri.rooms[circleID] = room
	}
	if _, ok := room[userID]; ok {
		return false
	}
	room[userID] = struct{}{}
	return true
}

// Leave reports whether userID was present.
func (ri *RoomIndex) Leave(circleID, userID uuid.UUID) bool {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.leaveLocked(circleID, userID)
}

func (ri *RoomIndex) leaveLocked(circleID, userID uuid.UUID) bool {
	room, ok := ri.rooms[circleID]
	if !ok {
		return false
	}
	if _, ok := room[userID]; !ok {
		return false
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(ri.rooms, circleID)
	}
	return true
}

// LeaveAll removes userID from every room and returns the rooms it left.
func (ri *RoomIndex) LeaveAll(userID uuid.UUID) []uuid.UUID {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	var left []uuid.UUID
	for circleID := range ri.rooms {
		if ri.leaveLocked(circleID, userID) {
			left = append(left, circleID)
		}
	}
	sortIDs(left)
	return left
}

func (ri *RoomIndex) Members(circleID uuid.UUID) []uuid.UUID {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	room := ri.rooms[circleID]
	members := make([]uuid.UUID, 0, len(room))
	for userID := range room {
		members = append(members, userID)
	}
	sortIDs(members)
	return members
}

func (ri *RoomIndex) Contains(circleID, userID uuid.UUID) bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	_, ok := ri.rooms[circleID][userID]
	return ok
}

// RoomsOf returns the rooms userID is live in.
func (ri *RoomIndex) RoomsOf(userID uuid.UUID) []uuid.UUID {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	var rooms []uuid.UUID
	for circleID, room := range ri.rooms {
		if _, ok := room[userID]; ok {
			rooms = append(rooms, circleID)
		}
	}
	sortIDs(rooms)
	return rooms
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
