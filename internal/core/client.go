package core

// Client is one live connection as seen by the core layer. A user may hold
// several clients at once (phone plus web); each tracks its own room set.
type Client struct {
	ID       string
	UserID   string
	Name     string
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = userID
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
		Rooms:    make(map[string]struct{}),
	}
}
