package race

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the process-wide map of room id to room. Rooms are created
// on first join and deleted as soon as their roster empties. The prompt
// fetch that backs creation runs without the registry lock held, and
// concurrent creations for the same id collapse into a single fetch.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	creating map[string]*creation
}

// creation tracks an in-flight room build so losers of a creation race
// wait for the winner's room instead of fetching a second prompt.
type creation struct {
	done chan struct{}
	room *Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		creating: make(map[string]*creation),
	}
}

// GetOrCreate returns the room for roomID, building it with build when it
// does not exist. Exactly one build runs per unknown id no matter how many
// joins race for it; the losers block until the winner's room is ready.
// The bool result reports whether this call created the room.
func (g *Registry) GetOrCreate(ctx context.Context, roomID string, build func(ctx context.Context) *Room) (*Room, bool) {
	g.mu.Lock()
	if room, ok := g.rooms[roomID]; ok {
		g.mu.Unlock()
		return room, false
	}
	if c, ok := g.creating[roomID]; ok {
		g.mu.Unlock()
		<-c.done
		return c.room, false
	}
	c := &creation{done: make(chan struct{})}
	g.creating[roomID] = c
	g.mu.Unlock()

	// The only blocking suspension in the engine: the prompt fetch. No
	// registry or room lock is held across it.
	room := build(ctx)

	g.mu.Lock()
	g.rooms[roomID] = room
	delete(g.creating, roomID)
	g.mu.Unlock()

	c.room = room
	close(c.done)

	log.Info().Str("room_id", roomID).Str("mode", string(room.Mode())).Msg("room created")
	return room, true
}

// Get returns the room for roomID, or nil when absent. Rooms still being
// created are absent: non-join operations never wait on a prompt fetch.
func (g *Registry) Get(roomID string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[roomID]
}

// RemoveIfEmpty deletes the registry entry when the room's roster is
// empty. The room is marked closed under its own lock first, so a join
// racing with the removal observes the closed room and re-resolves.
func (g *Registry) RemoveIfEmpty(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return
	}
	if room.closeIfEmpty() {
		delete(g.rooms, roomID)
		log.Info().Str("room_id", roomID).Msg("empty room removed")
	}
}

// Rooms returns a snapshot of all live rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
