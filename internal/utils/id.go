package utils

import "github.com/google/uuid"

// NewID returns a unique identifier for connections and messages.
func NewID() string {
	return uuid.NewString()
}
