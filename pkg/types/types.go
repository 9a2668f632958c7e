package types

import (
	"time"
)

// ARCHITECTURAL DISCOVERY: Message type constants are the wire contract with
// tutor and learner clients; every push carries one of these as its "type" tag
const (
	MessageTypeStudentList = "STUDENT_LIST"
	MessageTypeAlert       = "ALERT"
	MessageTypeActivity    = "ACTIVITY"
	MessageTypeModeSwitch  = "MODE_SWITCH"
)

// Role constants for connected users
const (
	RoleTutor   = "tutor"
	RoleLearner = "learner"
)

// ModeVideo is the content-delivery mode every learner starts in.
// A learner's mode only changes through a tutor control action.
const ModeVideo = "video"

// AlertTypeExcessivePausing is the only alert type the detector produces.
const AlertTypeExcessivePausing = "excessive_pausing"

// EventTypePause is the only behavior event type the detector counts.
// Every other event type passes through without touching window state.
const EventTypePause = "pause"

// User represents a persisted platform account
// FUNCTIONAL DISCOVERY: Credential checking happens in the store layer,
// never in the live message path
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"password,omitempty" db:"password"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Alert is the immutable record emitted when a learner crosses the pause
// threshold. The detector hands it to the caller for persistence and
// broadcast; nothing retains it afterwards.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// BehaviorEvent is an inbound learner activity signal
// ARCHITECTURAL DISCOVERY: Metadata as map[string]interface{} keeps client
// payloads flexible while remaining JSON-compatible for storage
type BehaviorEvent struct {
	UserID    string                 `json:"user_id"`
	EventType string                 `json:"event_type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventRecord is a behavior event as persisted by the record store,
// returned by the activity feed endpoint.
type EventRecord struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	EventType string                 `json:"event_type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ControlAction is a tutor command targeting one learner.
type ControlAction struct {
	TutorID    string `json:"tutor_id"`
	LearnerID  string `json:"learner_id"`
	ActionType string `json:"action_type"`
	NewMode    string `json:"new_mode"`
}

// LearnerEntry is one row of the live learner roster pushed to tutors.
type LearnerEntry struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Mode  string `json:"mode"`
}

// StudentStatus merges a persisted learner record with live presence
// FUNCTIONAL DISCOVERY: Persisted rows win for identity and email, the live
// registry wins for mode and online/offline status
type StudentStatus struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

// StudentListMessage is the full-roster presence push sent to every tutor on
// any connect, disconnect, or mode change. Full state, not a delta; the
// expected population is classroom scale.
type StudentListMessage struct {
	Type string         `json:"type"`
	Data []LearnerEntry `json:"data"`
}

// AlertMessage wraps an Alert for delivery to tutor connections.
type AlertMessage struct {
	Type string `json:"type"`
	Data *Alert `json:"data"`
}

// ActivityMessage notifies tutors of a single learner behavior event.
type ActivityMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Event  string `json:"event"`
}

// ModeSwitchMessage instructs one learner client to change delivery mode.
type ModeSwitchMessage struct {
	Type    string `json:"type"`
	NewMode string `json:"new_mode"`
}

// NewStudentListMessage builds the STUDENT_LIST envelope.
// FUNCTIONAL DISCOVERY: Empty rosters serialize as [] rather than null so
// tutor clients can always iterate the data field
func NewStudentListMessage(learners []LearnerEntry) *StudentListMessage {
	if learners == nil {
		learners = []LearnerEntry{}
	}
	return &StudentListMessage{Type: MessageTypeStudentList, Data: learners}
}

// NewAlertMessage builds the ALERT envelope.
func NewAlertMessage(alert *Alert) *AlertMessage {
	return &AlertMessage{Type: MessageTypeAlert, Data: alert}
}

// NewActivityMessage builds the ACTIVITY envelope.
func NewActivityMessage(userID, event string) *ActivityMessage {
	return &ActivityMessage{Type: MessageTypeActivity, UserID: userID, Event: event}
}

// NewModeSwitchMessage builds the MODE_SWITCH envelope.
func NewModeSwitchMessage(newMode string) *ModeSwitchMessage {
	return &ModeSwitchMessage{Type: MessageTypeModeSwitch, NewMode: newMode}
}
