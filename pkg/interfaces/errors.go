package interfaces

import "errors"

// Store error types shared between the store implementation and its callers
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
