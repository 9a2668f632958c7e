package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"tutorhub/pkg/types"
)

// Detector maintains a rolling window of pause timestamps per user and emits
// an alert whenever the count inside the window reaches the threshold.
// ARCHITECTURAL DISCOVERY: Per-user state tracking with lazy pruning keeps
// the detector timer-free; every evaluation uses the event's own instant
type Detector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	windows   map[string][]time.Time
}

// NewDetector creates a detector with the given sliding window and count
// threshold.
func NewDetector(window time.Duration, threshold int) *Detector {
	return &Detector{
		window:    window,
		threshold: threshold,
		windows:   make(map[string][]time.Time),
	}
}

// Observe evaluates an event against the user's window at the current time.
func (d *Detector) Observe(userID, eventType string) *types.Alert {
	return d.ObserveAt(userID, eventType, time.Now())
}

// ObserveAt evaluates an event at an explicit instant. Non-pause events are
// a stateless pass-through. For a pause event the instant is appended, the
// window is pruned relative to it, and an alert is returned when the
// retained count reaches the threshold.
// FUNCTIONAL DISCOVERY: Emission does not reset the window; a user who stays
// above threshold produces one alert per qualifying event until the window
// naturally drops below threshold. No cooldown, deliberately
func (d *Detector) ObserveAt(userID, eventType string, now time.Time) *types.Alert {
	if eventType != types.EventTypePause {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	retained := d.windows[userID][:0]
	for _, t := range d.windows[userID] {
		if now.Sub(t) < d.window {
			retained = append(retained, t)
		}
	}
	retained = append(retained, now)
	d.windows[userID] = retained

	if len(retained) < d.threshold {
		return nil
	}

	return &types.Alert{
		ID:        uuid.New().String(),
		UserID:    userID,
		AlertType: types.AlertTypeExcessivePausing,
		Message:   fmt.Sprintf("Student paused video %d times in a minute.", len(retained)),
		CreatedAt: now,
	}
}

// Cleanup drops windows whose newest entry is older than five window spans.
// Call periodically; without it, per-user windows accumulate forever as
// users churn.
// ARCHITECTURAL DISCOVERY: Eviction only removes windows that evaluation-time
// pruning would empty anyway, so detection semantics are unchanged
func (d *Detector) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for userID, window := range d.windows {
		if len(window) == 0 || now.Sub(window[len(window)-1]) > 5*d.window {
			delete(d.windows, userID)
		}
	}
}

// TrackedUsers returns the number of users with a retained window.
func (d *Detector) TrackedUsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}
