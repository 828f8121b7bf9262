package service

import "errors"

// ValidationError is a request-level field error. Field names are part of the
// API contract (the frontend keys its inline messages off them).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	// ErrInvalidCredentials wrong username or password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccessDenied the principal cannot act on the target cluster
	ErrAccessDenied = errors.New("access to cluster denied")

	// ErrClusterNotFound unknown cluster reference
	ErrClusterNotFound = errors.New("cluster not found")
)
