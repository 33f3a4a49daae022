package core

// Room groups the live clients joined to one ride's chat. Rooms exist only
// while someone is connected; membership is rebuilt by explicit rejoin.
type Room struct {
	Ride    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(ride string) *Room {
	return &Room{
		Ride:    ride,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Has reports whether the client is currently in the room.
func (r *Room) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Broadcast sends an event to all clients in the room.
func (r *Room) Broadcast(event *Event) {
	for client := range r.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// BroadcastExcept sends an event to all clients in the room except one.
// Presence and typing events go to the other members only.
func (r *Room) BroadcastExcept(skip *Client, event *Event) {
	for client := range r.clients {
		if client == skip {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Size returns the number of clients in the room.
func (r *Room) Size() int {
	return len(r.clients)
}
