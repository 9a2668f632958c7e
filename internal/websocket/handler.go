package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tutorhub/internal/config"
	"tutorhub/internal/registry"
	"tutorhub/pkg/types"
)

// WebSocket upgrader with production-ready settings
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades inbound presence connections and runs their liveness
// loops. All business state lives in the registry; the handler owns only
// the transport lifecycle.
type Handler struct {
	registry *registry.Registry
	cfg      *config.WebSocketConfig
}

// NewHandler creates a WebSocket handler bound to a registry.
func NewHandler(reg *registry.Registry, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		registry: reg,
		cfg:      cfg,
	}
}

// HandleWebSocket handles GET /ws/{user_id}?role=&email=.
// FUNCTIONAL DISCOVERY: Role and email travel as query parameters on the
// handshake; missing values default to learner/"unknown" so a bare client
// can still connect
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	role := r.URL.Query().Get("role")
	if role == "" {
		role = types.RoleLearner
	}
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'tutor' or 'learner'", http.StatusBadRequest)
		return
	}

	email := r.URL.Query().Get("email")
	if email == "" {
		email = "unknown"
	}

	// FUNCTIONAL DISCOVERY: Upgrade after validation prevents resource waste
	// on invalid requests while providing proper HTTP error responses
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize)

	// Registration triggers the roster push to tutors, including this
	// connection when it is a tutor itself
	h.registry.Connect(userID, role, email, wsConn)

	go h.handleConnection(userID, wsConn)
}

// handleConnection runs the liveness read loop until the peer goes away.
// The only contract of inbound frames is "connection still open"; payload
// content is ignored.
// ARCHITECTURAL DISCOVERY: Teardown is instance-guarded so a stale loop
// cannot remove the entry of a replacement connection after a reconnect
func (h *Handler) handleConnection(userID string, conn *Connection) {
	defer func() {
		h.registry.DisconnectConnection(userID, conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	// FUNCTIONAL DISCOVERY: Separate ticker goroutine keeps heartbeat timing
	// independent of client responsiveness
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", userID, err)
			}
			return
		}
	}
}
