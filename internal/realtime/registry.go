package realtime

import (
	"errors"
	"sync"
)

var ErrConnectionNotFound = errors.New("connection not found")

// RoomName is the public name of the room for a task.
func RoomName(taskID string) string {
	return "task_" + taskID
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	TotalRooms       int            `json:"total_rooms"`
	Rooms            map[string]int `json:"rooms"`
}

// Registry indexes live connections and the task rooms they joined, in both
// directions. A single lock guards both maps so every membership change is
// applied to both sides atomically.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // conn id -> task ids
	rooms map[string]map[string]struct{} // task id -> conn ids
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Connect registers id with no memberships. Connecting an id that is already
// registered drops its previous memberships.
func (r *Registry) Connect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropMembershipsLocked(id)
	r.conns[id] = make(map[string]struct{})
}

// Disconnect removes id from every room it joined. Unknown ids are ignored.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropMembershipsLocked(id)
	delete(r.conns, id)
}

func (r *Registry) dropMembershipsLocked(id string) {
	for taskID := range r.conns[id] {
		r.removeFromRoomLocked(taskID, id)
	}
}

func (r *Registry) removeFromRoomLocked(taskID, connID string) {
	members, ok := r.rooms[taskID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, taskID)
	}
}

func (r *Registry) Join(connID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	joined[taskID] = struct{}{}

	members, ok := r.rooms[taskID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[taskID] = members
	}
	members[connID] = struct{}{}
	return nil
}

// Leave is a no-op for a room the connection is not in.
func (r *Registry) Leave(connID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[connID]
	if !ok {
		return ErrConnectionNotFound
	}
	delete(joined, taskID)
	r.removeFromRoomLocked(taskID, connID)
	return nil
}

// RoomMembers returns a copy of the room's member ids.
func (r *Registry) RoomMembers(taskID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[taskID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Rooms returns the task ids a connection has joined.
func (r *Registry) Rooms(connID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined, ok := r.conns[connID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	out := make([]string, 0, len(joined))
	for id := range joined {
		out = append(out, id)
	}
	return out, nil
}

func (r *Registry) Connections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) IsConnected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]int, len(r.rooms))
	for taskID, members := range r.rooms {
		rooms[RoomName(taskID)] = len(members)
	}
	return Stats{
		TotalConnections: len(r.conns),
		TotalRooms:       len(r.rooms),
		Rooms:            rooms,
	}
}
