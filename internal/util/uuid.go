package util

import "github.com/google/uuid"

// NewMessageID returns a random identifier for queue messages.
func NewMessageID() string {
	return uuid.NewString()
}
