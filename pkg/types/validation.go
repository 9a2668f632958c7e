package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and ensures reasonable display in UI components
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks if a role is one of the two supported roles.
func IsValidRole(role string) bool {
	return role == RoleTutor || role == RoleLearner
}

// Validate ensures the behavior event meets all requirements
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (e *BehaviorEvent) Validate() error {
	if !IsValidUserID(e.UserID) {
		return ErrInvalidUserID
	}
	if e.EventType == "" {
		return ErrInvalidEventType
	}
	return nil
}

// Validate ensures the control action meets all requirements.
func (a *ControlAction) Validate() error {
	if !IsValidUserID(a.TutorID) || !IsValidUserID(a.LearnerID) {
		return ErrInvalidUserID
	}
	if a.NewMode == "" {
		return ErrInvalidMode
	}
	return nil
}

// Validate ensures the user record meets all requirements.
func (u *User) Validate() error {
	if !IsValidUserID(u.ID) {
		return ErrInvalidUserID
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}
