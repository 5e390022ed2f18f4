// Package registry owns the authoritative in-memory state of every
// active room and the bindings between transient session handles,
// stable participant identities and rooms. Pure storage; the
// orchestrator holds the business rules.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"gbserver/models"
)

// Registry is safe for concurrent use. Its lock guards the maps and
// roster membership only, never the game fields inside a Room.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	sessionUser map[string]string
	userSession map[string]string // maintained reverse index, no scans
	sessionRoom map[string]string
}

func New() *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		sessionUser: make(map[string]string),
		userSession: make(map[string]string),
		sessionRoom: make(map[string]string),
	}
}

// BindSession ties a transient session handle to a stable identity for
// the session's lifetime.
func (r *Registry) BindSession(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionUser[sessionID] = userID
	r.userSession[userID] = sessionID
}

// UnbindSession drops a session↔identity binding.
func (r *Registry) UnbindSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID, ok := r.sessionUser[sessionID]; ok {
		delete(r.userSession, userID)
	}
	delete(r.sessionUser, sessionID)
}

// SessionUser returns the identity bound to a session.
func (r *Registry) SessionUser(sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.sessionUser[sessionID]
	if !ok {
		return "", fmt.Errorf("session %s has no identity: %w", sessionID, models.ErrNotFound)
	}
	return userID, nil
}

// UserSession returns the session bound to an identity.
func (r *Registry) UserSession(userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.userSession[userID]
	if !ok {
		return "", fmt.Errorf("identity %s has no session: %w", userID, models.ErrNotFound)
	}
	return sessionID, nil
}

// Room returns a room by id.
func (r *Registry) Room(roomID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	return room, nil
}

// RoomBySession returns the room a session currently sits in.
func (r *Registry) RoomBySession(sessionID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.sessionRoom[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s is in no room: %w", sessionID, models.ErrNotFound)
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	return room, nil
}

// FindFreeRoom returns a room still accepting joins, or ErrNotFound
// when every room is full or already playing.
func (r *Registry) FindFreeRoom() (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.open && len(room.Sessions) < room.Capacity {
			return room, nil
		}
	}
	return nil, fmt.Errorf("no room with free capacity: %w", models.ErrNotFound)
}

// CreateRoom makes an empty waiting room with the given capacity.
func (r *Registry) CreateRoom(capacity int) *Room {
	room := &Room{
		ID:       uuid.New().String(),
		Capacity: capacity,
		State:    StateWaiting,
		open:     true,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
	return room
}

// AddSessionToRoom appends a session to a room's roster. Once the
// roster hits capacity the room stops accepting joins for good.
// Reports whether this add filled the last seat, so exactly one caller
// ever sees filled=true per room.
func (r *Registry) AddSessionToRoom(roomID, sessionID string) (filled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false, fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	if len(room.Sessions) >= room.Capacity {
		return false, fmt.Errorf("room %s is full: %w", roomID, models.ErrCapacityExceeded)
	}
	room.Sessions = append(room.Sessions, sessionID)
	if len(room.Sessions) == room.Capacity {
		room.open = false
		filled = true
	}
	r.sessionRoom[sessionID] = roomID
	return filled, nil
}

// RemoveSession takes a session out of its room and drops all its
// bindings. When the roster empties the room and every auxiliary
// mapping disappear in the same critical section, so no later lookup
// can see a half-removed room. Reports whether the room emptied.
func (r *Registry) RemoveSession(sessionID string) (room *Room, empty bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID, ok := r.sessionUser[sessionID]; ok {
		delete(r.userSession, userID)
	}
	delete(r.sessionUser, sessionID)

	roomID, ok := r.sessionRoom[sessionID]
	if !ok {
		return nil, false, fmt.Errorf("session %s is in no room: %w", sessionID, models.ErrNotFound)
	}
	delete(r.sessionRoom, sessionID)

	room, ok = r.rooms[roomID]
	if !ok {
		return nil, false, fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}
	for i, s := range room.Sessions {
		if s == sessionID {
			room.Sessions = append(room.Sessions[:i], room.Sessions[i+1:]...)
			break
		}
	}
	if len(room.Sessions) == 0 {
		delete(r.rooms, roomID)
		return room, true, nil
	}
	return room, false, nil
}

// RoomSessions returns a copy of the roster in join order.
func (r *Registry) RoomSessions(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	sessions := make([]string, len(room.Sessions))
	copy(sessions, room.Sessions)
	return sessions
}

// RoomIdentities returns the identities of a room's roster in join order.
func (r *Registry) RoomIdentities(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	identities := make([]string, 0, len(room.Sessions))
	for _, sessionID := range room.Sessions {
		if userID, ok := r.sessionUser[sessionID]; ok {
			identities = append(identities, userID)
		}
	}
	return identities
}
