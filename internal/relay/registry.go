package relay

import (
	"sort"
	"time"
)

// Registry maps session ids to live rooms. It is not safe for concurrent
// use; the relay goroutine is its only caller.
type Registry struct {
	rooms map[string]*Room
	now   func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{rooms: map[string]*Room{}, now: now}
}

// GetOrCreate returns the room for id, creating an empty one if needed.
// created reports whether a new room was stored.
func (g *Registry) GetOrCreate(id string) (rm *Room, created bool) {
	if rm := g.rooms[id]; rm != nil {
		return rm, false
	}
	rm = newRoom(id, g.now())
	g.rooms[id] = rm
	return rm, true
}

func (g *Registry) Get(id string) (*Room, bool) {
	rm, ok := g.rooms[id]
	return rm, ok
}

// Remove deletes the mapping; removing an absent id is a no-op
func (g *Registry) Remove(id string) { delete(g.rooms, id) }

func (g *Registry) Len() int { return len(g.rooms) }

// Each visits rooms in id order
func (g *Registry) Each(fn func(*Room)) {
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fn(g.rooms[id])
	}
}
