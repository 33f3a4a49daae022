package utils

import "github.com/google/uuid"

// NewConnID returns a unique identifier for a live connection.
func NewConnID() string {
	return uuid.NewString()
}
