package core

import "github.com/google/uuid"

// NewRequestID returns a short identifier used to correlate the log lines of a single load.
func NewRequestID() string {
	id := uuid.New().String()
	return id[:8]
}
