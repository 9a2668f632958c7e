package registry

import (
	"log"
	"sync"

	"tutorhub/pkg/types"
)

// Sender is the exclusive push handle a connection entry owns. The concrete
// implementation is the WebSocket connection wrapper; tests substitute fakes.
type Sender interface {
	WriteJSON(v interface{}) error
	Close() error
}

// entry holds the live state for one connected user.
// FUNCTIONAL DISCOVERY: Mode is mutable in place so a control action is
// visible to the very next roster snapshot without re-registering
type entry struct {
	conn  Sender
	role  string
	email string
	mode  string
}

// Registry is the single source of truth for who is online, in what role,
// and in what mode. It is the only component permitted to push to a
// connection's send handle.
// ARCHITECTURAL DISCOVERY: One mutex-guarded map keyed by user ID keeps
// the uniqueness invariant trivially: insertion overwrites
type Registry struct {
	mu    sync.RWMutex
	users map[string]*entry
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*entry),
	}
}

// Connect inserts or replaces the entry for userID and then pushes a fresh
// roster to every tutor, including the new connection when it is a tutor
// itself. Mode always resets to the default on connect.
// FUNCTIONAL DISCOVERY: A duplicate user ID silently overwrites the previous
// entry; the stale handle is closed asynchronously to avoid holding the
// registry lock through a network close
func (r *Registry) Connect(userID, role, email string, conn Sender) {
	r.mu.Lock()
	if existing, ok := r.users[userID]; ok {
		go func(old Sender) {
			if err := old.Close(); err != nil {
				log.Printf("Failed to close replaced connection for %s: %v", userID, err)
			}
		}(existing.conn)
	}
	r.users[userID] = &entry{
		conn:  conn,
		role:  role,
		email: email,
		mode:  types.ModeVideo,
	}
	r.mu.Unlock()

	log.Printf("Connected: %s (%s)", userID, role)
	r.BroadcastRoster()
}

// Disconnect removes the entry for userID if present and then refreshes the
// tutor roster. Absent users are a no-op, which makes double-disconnect
// races harmless.
// ARCHITECTURAL DISCOVERY: Removal happens synchronously under the lock
// before the roster goroutine starts, so the triggered snapshot can never
// contain the removed user
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	_, ok := r.users[userID]
	if ok {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	if ok {
		log.Printf("Disconnected: %s", userID)
		go r.BroadcastRoster()
	}
}

// DisconnectConnection removes userID only if the registered entry still
// owns the given handle.
// RACE CONDITION FIX: A read loop dying after its user reconnected must not
// tear down the replacement connection's entry
func (r *Registry) DisconnectConnection(userID string, conn Sender) {
	r.mu.Lock()
	existing, ok := r.users[userID]
	removed := ok && existing.conn == conn
	if removed {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	if removed {
		log.Printf("Disconnected: %s", userID)
		go r.BroadcastRoster()
	}
}

// SendTo delivers a message to a single user. Absent recipients and send
// failures are swallowed; presence is best-effort telemetry.
func (r *Registry) SendTo(userID string, message interface{}) {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if err := e.conn.WriteJSON(message); err != nil {
		log.Printf("Failed to deliver message to %s: %v", userID, err)
	}
}

// Broadcast delivers a message to every connection matching roleFilter, or
// to everyone when the filter is empty.
// ARCHITECTURAL DISCOVERY: Recipients are snapshotted under the read lock
// and sends happen outside it, so one slow or broken recipient can neither
// stall unrelated registry mutations nor block delivery to the others
func (r *Registry) Broadcast(message interface{}, roleFilter string) {
	r.mu.RLock()
	recipients := make([]Sender, 0, len(r.users))
	ids := make([]string, 0, len(r.users))
	for userID, e := range r.users {
		if roleFilter == "" || e.role == roleFilter {
			recipients = append(recipients, e.conn)
			ids = append(ids, userID)
		}
	}
	r.mu.RUnlock()

	for i, conn := range recipients {
		if err := conn.WriteJSON(message); err != nil {
			// Fire-and-forget per recipient; keep delivering to the rest
			log.Printf("Failed to deliver broadcast to %s: %v", ids[i], err)
		}
	}
}

// SnapshotLearners returns the current learner roster. Ordering follows map
// iteration and is not stable across churn.
func (r *Registry) SnapshotLearners() []types.LearnerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	learners := make([]types.LearnerEntry, 0, len(r.users))
	for userID, e := range r.users {
		if e.role == types.RoleLearner {
			learners = append(learners, types.LearnerEntry{
				ID:    userID,
				Email: e.email,
				Mode:  e.mode,
			})
		}
	}
	return learners
}

// SetMode mutates the mode of a connected learner and reports whether the
// user was connected. A miss is not an error; the control action is still
// persisted by the caller regardless.
func (r *Registry) SetMode(userID, mode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		return false
	}
	e.mode = mode
	return true
}

// BroadcastRoster pushes the full current learner roster to every tutor.
// Full-state push, not a delta; acceptable at classroom scale.
func (r *Registry) BroadcastRoster() {
	r.Broadcast(types.NewStudentListMessage(r.SnapshotLearners()), types.RoleTutor)
}

// Stats returns connection counts for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tutors, learners := 0, 0
	for _, e := range r.users {
		switch e.role {
		case types.RoleTutor:
			tutors++
		case types.RoleLearner:
			learners++
		}
	}
	return map[string]int{
		"total_connections": len(r.users),
		"tutors":            tutors,
		"learners":          learners,
	}
}
