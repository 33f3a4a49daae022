package core

import "time"

// Message is the domain model for a ride chat message.
// SenderName is captured at send time and never updated afterwards,
// so history keeps the name the sender had when the message was written.
type Message struct {
	ID         int64
	Ride       string
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time
	ReadBy     []string
}
