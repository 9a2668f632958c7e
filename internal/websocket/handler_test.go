package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/registry"
	"tutorhub/pkg/types"
)

// newTestHub mounts the handler on a chi router behind httptest, matching
// the production route shape.
func newTestHub(t *testing.T) (*registry.Registry, string) {
	t.Helper()

	reg := registry.NewRegistry()
	handler := NewHandler(reg, &config.WebSocketConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	})

	router := chi.NewRouter()
	router.Get("/ws/{user_id}", handler.HandleWebSocket)

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	return reg, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s failed: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForStat(t *testing.T, reg *registry.Registry, key string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Stats()[key] == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Stat %s never reached %d, got %d", key, want, reg.Stats()[key])
}

func TestHandler_RejectsInvalidUserID(t *testing.T) {
	_, base := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/bad%20id", nil)
	if err == nil {
		t.Fatal("Expected handshake rejection for invalid user ID")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 response, got %+v", resp)
	}
}

func TestHandler_RejectsInvalidRole(t *testing.T) {
	_, base := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/user1?role=admin", nil)
	if err == nil {
		t.Fatal("Expected handshake rejection for invalid role")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 response, got %+v", resp)
	}
}

func TestHandler_ConnectRegistersLearnerByDefault(t *testing.T) {
	reg, base := newTestHub(t)

	dial(t, base+"/ws/learner1?email=l1@example.com")
	waitForStat(t, reg, "learners", 1)

	learners := reg.SnapshotLearners()
	if len(learners) != 1 || learners[0].ID != "learner1" {
		t.Fatalf("Unexpected roster: %+v", learners)
	}
	if learners[0].Email != "l1@example.com" {
		t.Errorf("Email not carried from handshake: %q", learners[0].Email)
	}
	if learners[0].Mode != types.ModeVideo {
		t.Errorf("Expected default mode %q, got %q", types.ModeVideo, learners[0].Mode)
	}
}

func TestHandler_TutorReceivesRosterOnLearnerConnect(t *testing.T) {
	reg, base := newTestHub(t)

	tutorConn := dial(t, base+"/ws/tutor1?role=tutor&email=t@example.com")
	waitForStat(t, reg, "tutors", 1)

	// Tutor's own connect pushes the initial empty roster
	tutorConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first types.StudentListMessage
	if err := tutorConn.ReadJSON(&first); err != nil {
		t.Fatalf("Failed to read initial roster: %v", err)
	}
	if first.Type != types.MessageTypeStudentList || len(first.Data) != 0 {
		t.Fatalf("Unexpected initial roster: %+v", first)
	}

	dial(t, base+"/ws/learner1?email=l1@example.com")

	tutorConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var updated types.StudentListMessage
	if err := tutorConn.ReadJSON(&updated); err != nil {
		t.Fatalf("Failed to read updated roster: %v", err)
	}
	if len(updated.Data) != 1 || updated.Data[0].ID != "learner1" {
		t.Fatalf("Expected roster containing learner1, got %+v", updated.Data)
	}
}

func TestHandler_DisconnectRemovesFromRegistry(t *testing.T) {
	reg, base := newTestHub(t)

	conn := dial(t, base+"/ws/learner1")
	waitForStat(t, reg, "learners", 1)

	conn.Close()
	waitForStat(t, reg, "learners", 0)
}

func TestHandler_ReconnectReplacesConnection(t *testing.T) {
	reg, base := newTestHub(t)

	dial(t, base+"/ws/learner1")
	waitForStat(t, reg, "learners", 1)

	// Second handshake with the same ID replaces the first entry; the
	// stale read loop's teardown must not remove the replacement
	dial(t, base+"/ws/learner1")
	time.Sleep(100 * time.Millisecond)

	if got := reg.Stats()["learners"]; got != 1 {
		t.Errorf("Expected exactly 1 learner after reconnect, got %d", got)
	}
}
