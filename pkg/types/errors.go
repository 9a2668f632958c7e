package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID    = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole      = errors.New("invalid role: must be 'tutor' or 'learner'")
	ErrInvalidEventType = errors.New("event type cannot be empty")
	ErrInvalidMode      = errors.New("mode cannot be empty")
)
