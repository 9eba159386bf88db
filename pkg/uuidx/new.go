package uuidx

import "github.com/google/uuid"

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it
// as a string. Version 7 ids are time-ordered, which keeps subscription
// tokens and client ids roughly sortable by creation time.
func NewString() string {
	return New().String()
}
