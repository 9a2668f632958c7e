package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"tutorhub/pkg/types"
)

// fakeSender records every message written to it so tests can assert on
// delivery without a real WebSocket.
type fakeSender struct {
	mu       sync.Mutex
	messages []interface{}
	closed   bool
	failNext bool
}

func (f *fakeSender) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("write failed")
	}
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeSender) lastMessage() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// waitFor polls until the condition holds or the deadline passes.
// Roster broadcasts on disconnect and connection teardown are async.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := NewRegistry()

	if registry == nil {
		t.Fatal("NewRegistry returned nil")
	}

	stats := registry.Stats()
	if stats["total_connections"] != 0 {
		t.Errorf("Expected 0 initial connections, got %d", stats["total_connections"])
	}
}

func TestRegistry_ConnectLearnerDefaultsToVideoMode(t *testing.T) {
	registry := NewRegistry()

	registry.Connect("learner1", types.RoleLearner, "learner1@example.com", &fakeSender{})

	learners := registry.SnapshotLearners()
	if len(learners) != 1 {
		t.Fatalf("Expected 1 learner, got %d", len(learners))
	}
	if learners[0].Mode != types.ModeVideo {
		t.Errorf("Expected initial mode %q, got %q", types.ModeVideo, learners[0].Mode)
	}
	if learners[0].Email != "learner1@example.com" {
		t.Errorf("Expected email to be tracked, got %q", learners[0].Email)
	}
}

func TestRegistry_ConnectionReplacement(t *testing.T) {
	registry := NewRegistry()

	first := &fakeSender{}
	registry.Connect("user123", types.RoleLearner, "user@example.com", first)

	// Put the learner in a non-default mode so we can see the reset
	if !registry.SetMode("user123", "screen_only") {
		t.Fatal("SetMode failed for connected learner")
	}

	second := &fakeSender{}
	registry.Connect("user123", types.RoleLearner, "user@example.com", second)

	// Exactly one entry remains for the user ID
	stats := registry.Stats()
	if stats["total_connections"] != 1 {
		t.Errorf("Expected 1 connection after replacement, got %d", stats["total_connections"])
	}

	// Reconnect reverts the tracked mode to the default
	learners := registry.SnapshotLearners()
	if learners[0].Mode != types.ModeVideo {
		t.Errorf("Expected mode reset to %q on reconnect, got %q", types.ModeVideo, learners[0].Mode)
	}

	// Replaced connection is closed in the background
	waitFor(t, time.Second, first.isClosed)
}

func TestRegistry_StaleDisconnectDoesNotRemoveReplacement(t *testing.T) {
	registry := NewRegistry()

	first := &fakeSender{}
	registry.Connect("user123", types.RoleLearner, "user@example.com", first)

	second := &fakeSender{}
	registry.Connect("user123", types.RoleLearner, "user@example.com", second)

	// RACE CONDITION FIX: the read loop of the first connection fires its
	// deferred cleanup after the second connection registered. Guarding on
	// the connection instance keeps the replacement alive.
	registry.DisconnectConnection("user123", first)

	stats := registry.Stats()
	if stats["total_connections"] != 1 {
		t.Errorf("Stale disconnect removed the replacement entry, got %d connections", stats["total_connections"])
	}

	registry.DisconnectConnection("user123", second)
	waitFor(t, time.Second, func() bool {
		return registry.Stats()["total_connections"] == 0
	})
}

func TestRegistry_DisconnectIdempotent(t *testing.T) {
	registry := NewRegistry()

	registry.Connect("user123", types.RoleLearner, "user@example.com", &fakeSender{})

	registry.Disconnect("user123")
	registry.Disconnect("user123")
	registry.Disconnect("never-connected")

	stats := registry.Stats()
	if stats["total_connections"] != 0 {
		t.Errorf("Expected 0 connections after repeated disconnects, got %d", stats["total_connections"])
	}
}

func TestRegistry_SnapshotExcludesDisconnected(t *testing.T) {
	registry := NewRegistry()

	registry.Connect("learner1", types.RoleLearner, "a@example.com", &fakeSender{})
	registry.Connect("learner2", types.RoleLearner, "b@example.com", &fakeSender{})

	registry.Disconnect("learner1")

	// Removal happens synchronously, so the snapshot taken immediately
	// after Disconnect returns must not include the departed learner.
	learners := registry.SnapshotLearners()
	if len(learners) != 1 {
		t.Fatalf("Expected 1 learner after disconnect, got %d", len(learners))
	}
	if learners[0].ID != "learner2" {
		t.Errorf("Expected learner2 to remain, got %q", learners[0].ID)
	}
}

func TestRegistry_BroadcastRoleFiltering(t *testing.T) {
	registry := NewRegistry()

	tutor := &fakeSender{}
	learner := &fakeSender{}
	registry.Connect("tutor1", types.RoleTutor, "t@example.com", tutor)
	registry.Connect("learner1", types.RoleLearner, "l@example.com", learner)

	// Connect already pushed a roster to the tutor. Record the baseline.
	baseline := tutor.messageCount()

	registry.Broadcast(types.NewAlertMessage(&types.Alert{
		UserID:    "learner1",
		AlertType: types.AlertTypeExcessivePausing,
		Message:   "Student paused video 5 times in a minute.",
	}), types.RoleTutor)

	if tutor.messageCount() != baseline+1 {
		t.Errorf("Expected tutor to receive broadcast, got %d new messages", tutor.messageCount()-baseline)
	}
	if learner.messageCount() != 0 {
		t.Errorf("Expected learner to receive nothing, got %d messages", learner.messageCount())
	}
}

func TestRegistry_BroadcastToAllRoles(t *testing.T) {
	registry := NewRegistry()

	tutor := &fakeSender{}
	learner := &fakeSender{}
	registry.Connect("tutor1", types.RoleTutor, "t@example.com", tutor)
	registry.Connect("learner1", types.RoleLearner, "l@example.com", learner)

	tutorBaseline := tutor.messageCount()

	registry.Broadcast(map[string]string{"type": "ANNOUNCEMENT"}, "")

	if tutor.messageCount() != tutorBaseline+1 {
		t.Error("Expected tutor to receive unfiltered broadcast")
	}
	if learner.messageCount() != 1 {
		t.Errorf("Expected learner to receive unfiltered broadcast, got %d", learner.messageCount())
	}
}

func TestRegistry_BroadcastSurvivesFailedRecipient(t *testing.T) {
	registry := NewRegistry()

	failing := &fakeSender{}
	healthy := &fakeSender{}
	registry.Connect("tutor1", types.RoleTutor, "t1@example.com", failing)
	registry.Connect("tutor2", types.RoleTutor, "t2@example.com", healthy)

	failing.mu.Lock()
	failing.failNext = true
	failing.mu.Unlock()
	baseline := healthy.messageCount()

	registry.Broadcast(map[string]string{"type": "PING"}, types.RoleTutor)

	if healthy.messageCount() != baseline+1 {
		t.Error("Broadcast should continue past a failed recipient")
	}
}

func TestRegistry_SendToMissingUserIsNoOp(t *testing.T) {
	registry := NewRegistry()

	// Must not panic or error outward
	registry.SendTo("ghost", types.NewModeSwitchMessage("screen_only"))
}

func TestRegistry_SetModeVisibleInSnapshot(t *testing.T) {
	registry := NewRegistry()

	registry.Connect("learner1", types.RoleLearner, "l@example.com", &fakeSender{})

	if !registry.SetMode("learner1", "screen_only") {
		t.Fatal("SetMode should succeed for connected learner")
	}
	if registry.SetMode("ghost", "screen_only") {
		t.Error("SetMode should report false for unknown user")
	}

	learners := registry.SnapshotLearners()
	if learners[0].Mode != "screen_only" {
		t.Errorf("Expected mode %q in snapshot, got %q", "screen_only", learners[0].Mode)
	}
}

func TestRegistry_ConnectBroadcastsRosterToTutors(t *testing.T) {
	registry := NewRegistry()

	tutor := &fakeSender{}
	registry.Connect("tutor1", types.RoleTutor, "t@example.com", tutor)

	registry.Connect("learner1", types.RoleLearner, "l@example.com", &fakeSender{})

	waitFor(t, time.Second, func() bool { return tutor.messageCount() >= 1 })

	msg := tutor.lastMessage()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Roster message not serializable: %v", err)
	}

	var roster types.StudentListMessage
	if err := json.Unmarshal(payload, &roster); err != nil {
		t.Fatalf("Roster message has wrong shape: %v", err)
	}
	if roster.Type != types.MessageTypeStudentList {
		t.Errorf("Expected type %q, got %q", types.MessageTypeStudentList, roster.Type)
	}
	if len(roster.Data) != 1 || roster.Data[0].ID != "learner1" {
		t.Errorf("Expected roster containing learner1, got %+v", roster.Data)
	}
}

func TestRegistry_DisconnectBroadcastsUpdatedRoster(t *testing.T) {
	registry := NewRegistry()

	tutor := &fakeSender{}
	registry.Connect("tutor1", types.RoleTutor, "t@example.com", tutor)
	registry.Connect("learner1", types.RoleLearner, "l@example.com", &fakeSender{})

	waitFor(t, time.Second, func() bool { return tutor.messageCount() >= 1 })
	baseline := tutor.messageCount()

	registry.Disconnect("learner1")

	waitFor(t, time.Second, func() bool { return tutor.messageCount() > baseline })

	payload, _ := json.Marshal(tutor.lastMessage())
	var roster types.StudentListMessage
	if err := json.Unmarshal(payload, &roster); err != nil {
		t.Fatalf("Roster message has wrong shape: %v", err)
	}
	if len(roster.Data) != 0 {
		t.Errorf("Expected empty roster after disconnect, got %+v", roster.Data)
	}
}

func TestRegistry_Stats(t *testing.T) {
	registry := NewRegistry()

	registry.Connect("tutor1", types.RoleTutor, "t@example.com", &fakeSender{})
	registry.Connect("learner1", types.RoleLearner, "l1@example.com", &fakeSender{})
	registry.Connect("learner2", types.RoleLearner, "l2@example.com", &fakeSender{})

	stats := registry.Stats()
	if stats["total_connections"] != 3 {
		t.Errorf("Expected 3 total connections, got %d", stats["total_connections"])
	}
	if stats["tutors"] != 1 {
		t.Errorf("Expected 1 tutor, got %d", stats["tutors"])
	}
	if stats["learners"] != 2 {
		t.Errorf("Expected 2 learners, got %d", stats["learners"])
	}
}

// Technical Validation Tests (Race Detection)
func TestRegistry_ConcurrentConnects(t *testing.T) {
	registry := NewRegistry()

	const numConnections = 50
	var wg sync.WaitGroup
	wg.Add(numConnections)

	for i := 0; i < numConnections; i++ {
		go func(id int) {
			defer wg.Done()
			registry.Connect(fmt.Sprintf("user%d", id), types.RoleLearner, fmt.Sprintf("user%d@example.com", id), &fakeSender{})
		}(i)
	}

	wg.Wait()

	stats := registry.Stats()
	if stats["total_connections"] != numConnections {
		t.Errorf("Expected %d connections, got %d", numConnections, stats["total_connections"])
	}
}

func TestRegistry_ConcurrentMixedOperations(t *testing.T) {
	registry := NewRegistry()

	const numOperations = 100
	var wg sync.WaitGroup
	wg.Add(numOperations)

	for i := 0; i < numOperations; i++ {
		go func(id int) {
			defer wg.Done()

			userID := fmt.Sprintf("user%d", id%10)
			switch id % 4 {
			case 0:
				registry.Connect(userID, types.RoleLearner, userID+"@example.com", &fakeSender{})
			case 1:
				registry.Disconnect(userID)
			case 2:
				registry.SnapshotLearners()
				registry.Stats()
			case 3:
				registry.SetMode(userID, "screen_only")
				registry.Broadcast(map[string]string{"type": "PING"}, types.RoleTutor)
			}
		}(i)
	}

	wg.Wait()

	// Registry must end in a consistent state
	stats := registry.Stats()
	if stats["total_connections"] < 0 || stats["total_connections"] > 10 {
		t.Errorf("Registry in inconsistent state: %d connections", stats["total_connections"])
	}
}
