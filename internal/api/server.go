package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/mem"

	"tutorhub/internal/alert"
	"tutorhub/internal/registry"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Server is the HTTP surface between clients and the hub core.
// ARCHITECTURAL DISCOVERY: Pure interface layer - no business logic beyond
// orchestration, only HTTP handling and JSON serialization
type Server struct {
	store     interfaces.Store
	registry  *registry.Registry
	detector  *alert.Detector
	router    chi.Router
	startTime time.Time
}

// NewServer creates the API server and wires its routes.
func NewServer(store interfaces.Store, reg *registry.Registry, detector *alert.Detector) *Server {
	s := &Server{
		store:     store,
		registry:  reg,
		detector:  detector,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all endpoints with CORS and JSON middleware applied.
func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.jsonMiddleware)

	s.router.Get("/", s.handleRoot)
	s.router.Post("/login", s.handleLogin)
	s.router.Post("/register_user", s.handleRegisterUser)
	s.router.Get("/students", s.handleStudents)
	s.router.Get("/alerts", s.handleAlerts)
	s.router.Get("/activities", s.handleActivities)
	s.router.Post("/events", s.handleEvents)
	s.router.Post("/control-action", s.handleControlAction)
	s.router.Get("/health", s.handleHealth)
}

// ServeHTTP implements http.Handler for integration with the HTTP server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the chi router so the app can mount extra endpoints.
func (s *Server) Router() chi.Router {
	return s.router
}

// Request/Response types for JSON serialization
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginResponse struct {
	Status string    `json:"status"`
	User   LoginUser `json:"user"`
}

type RegisterUserRequest struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ControlActionResponse struct {
	Status    string `json:"status"`
	LearnerID string `json:"learner_id"`
	NewMode   string `json:"new_mode"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET / - liveness message
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Tutorhub backend is running"})
}

// POST /login - credential check against the users table
// FUNCTIONAL DISCOVERY: The only failures this system surfaces outward live
// here; the live presence path degrades silently instead
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUserByCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		log.Printf("Login error: %v", err)
		s.sendError(w, "Database error", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(LoginResponse{
		Status: "success",
		User:   LoginUser{ID: user.ID, Email: user.Email, Role: user.Role},
	})
}

// POST /register_user - insert the account if absent
// FUNCTIONAL DISCOVERY: Re-registering an existing ID succeeds without
// modifying the stored record, keeping client retries harmless
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Password == "" {
		req.Password = "pass123"
	}

	user := &types.User{
		ID:       req.ID,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}
	if err := user.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetUserByID(r.Context(), user.ID); err == nil {
		_ = json.NewEncoder(w).Encode(StatusResponse{Status: "success"})
		return
	} else if !errors.Is(err, interfaces.ErrUserNotFound) {
		log.Printf("Register error: %v", err)
		_ = json.NewEncoder(w).Encode(StatusResponse{Status: "error"})
		return
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		log.Printf("Register error: %v", err)
		_ = json.NewEncoder(w).Encode(StatusResponse{Status: "error"})
		return
	}

	_ = json.NewEncoder(w).Encode(StatusResponse{Status: "success"})
}

// GET /students - persisted learners merged with live presence
// FUNCTIONAL DISCOVERY: Persisted records win for identity/email, the live
// registry wins for mode/status, and live-only learners are still included
// to stay robust against registration races
func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	live := make(map[string]types.LearnerEntry)
	for _, l := range s.registry.SnapshotLearners() {
		live[l.ID] = l
	}

	persisted, err := s.store.ListLearners(r.Context())
	if err != nil {
		log.Printf("Error fetching students: %v", err)
		persisted = nil
	}

	students := make([]types.StudentStatus, 0, len(persisted)+len(live))
	seen := make(map[string]bool, len(persisted))
	for _, u := range persisted {
		seen[u.ID] = true
		status := types.StudentStatus{
			ID:     u.ID,
			Email:  u.Email,
			Mode:   types.ModeVideo,
			Status: "offline",
		}
		if entry, ok := live[u.ID]; ok {
			status.Mode = entry.Mode
			status.Status = "online"
		}
		students = append(students, status)
	}

	for id, entry := range live {
		if !seen[id] {
			students = append(students, types.StudentStatus{
				ID:     id,
				Email:  entry.Email,
				Mode:   entry.Mode,
				Status: "online",
			})
		}
	}

	_ = json.NewEncoder(w).Encode(students)
}

// GET /alerts - ten most recent alerts, newest first
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListRecentAlerts(r.Context(), 10)
	if err != nil {
		log.Printf("Error fetching alerts: %v", err)
		alerts = nil
	}
	if alerts == nil {
		alerts = []*types.Alert{}
	}
	_ = json.NewEncoder(w).Encode(alerts)
}

// GET /activities - twenty most recent behavior events, newest first
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListRecentEvents(r.Context(), 20)
	if err != nil {
		log.Printf("Error fetching activities: %v", err)
		events = nil
	}
	if events == nil {
		events = []*types.EventRecord{}
	}
	_ = json.NewEncoder(w).Encode(events)
}

// POST /events - behavior event intake
// ARCHITECTURAL DISCOVERY: Persist-then-detect-then-notify; every
// persistence step is best-effort so a storage outage never silences the
// live alert and activity pushes
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var event types.BehaviorEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := event.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.StoreEvent(r.Context(), &event); err != nil {
		log.Printf("Event persistence error: %v", err)
	}

	if a := s.detector.Observe(event.UserID, event.EventType); a != nil {
		if err := s.store.StoreAlert(r.Context(), a); err != nil {
			log.Printf("Alert persistence error: %v", err)
		}
		s.registry.Broadcast(types.NewAlertMessage(a), types.RoleTutor)
	}

	s.registry.Broadcast(types.NewActivityMessage(event.UserID, event.EventType), types.RoleTutor)

	_ = json.NewEncoder(w).Encode(StatusResponse{Status: "success"})
}

// POST /control-action - tutor command targeting one learner
// FUNCTIONAL DISCOVERY: The action is persisted whether or not the learner
// is currently connected; mode mutation and the MODE_SWITCH push are
// best-effort, then the tutor roster refreshes so the change is visible
func (s *Server) handleControlAction(w http.ResponseWriter, r *http.Request) {
	var action types.ControlAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := action.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.StoreControlAction(r.Context(), &action); err != nil {
		log.Printf("Control action persistence error: %v", err)
	}

	s.registry.SetMode(action.LearnerID, action.NewMode)
	s.registry.SendTo(action.LearnerID, types.NewModeSwitchMessage(action.NewMode))
	s.registry.BroadcastRoster()

	_ = json.NewEncoder(w).Encode(ControlActionResponse{
		Status:    "mode_switched",
		LearnerID: action.LearnerID,
		NewMode:   action.NewMode,
	})
}

// GET /health - store health plus registry and host statistics
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	systemInfo := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"uptime":     time.Since(s.startTime).String(),
	}
	// FUNCTIONAL DISCOVERY: Host memory via gopsutil; omitted rather than
	// fatal when the platform does not expose it
	if vm, err := mem.VirtualMemory(); err == nil {
		systemInfo["memory_used_percent"] = vm.UsedPercent
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
		System:      systemInfo,
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

// sendError writes a consistent error response format.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access
// ARCHITECTURAL DISCOVERY: Allows all origins in development - would be
// restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware ensures proper content-type headers on all API responses.
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
