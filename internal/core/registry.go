package core

// Registry is the process-local bookkeeping of which live clients are in
// which ride room. It is owned by the hub goroutine, which serializes all
// mutations, so the maps need no further locking. State is never persisted;
// clients rebuild it by rejoining after a reconnect or restart.
type Registry struct {
	rooms map[string]*Room
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Room returns the room for a ride, creating it on first use. Rooms are
// implicit: the first join brings one into being.
func (g *Registry) Room(ride string) *Room {
	room, ok := g.rooms[ride]
	if !ok {
		room = NewRoom(ride)
		g.rooms[ride] = room
	}
	return room
}

// Lookup returns the room for a ride, or nil if nobody is connected to it.
func (g *Registry) Lookup(ride string) *Room {
	return g.rooms[ride]
}

// Remove takes a client out of a room, dropping the room once empty.
// Returns true if the client was a member.
func (g *Registry) Remove(c *Client, ride string) bool {
	room, ok := g.rooms[ride]
	if !ok {
		return false
	}
	removed := room.RemoveClient(c)
	if room.Empty() {
		delete(g.rooms, ride)
	}
	return removed
}

// RemoveAll takes a client out of every room it joined and returns the ride
// ids it was removed from. Used on disconnect.
func (g *Registry) RemoveAll(c *Client) []string {
	rides := make([]string, 0, len(c.Rooms))
	for ride := range c.Rooms {
		if g.Remove(c, ride) {
			rides = append(rides, ride)
		}
	}
	return rides
}

// Rooms returns the number of rooms with at least one connected client.
func (g *Registry) Rooms() int {
	return len(g.rooms)
}
