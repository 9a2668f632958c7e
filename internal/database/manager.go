package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "tutorhub/pkg/database"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Manager implements the interfaces.Store record store on SQLite.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new store manager and starts its writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	// ARCHITECTURAL DISCOVERY: SQLite connection string carries the busy
	// timeout and WAL settings so every pooled connection behaves the same
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
	// contention while reads stay concurrent under WAL
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after 5 seconds;
			// persistence is best-effort and callers never block the live
			// path on the outcome
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// CreateUser inserts a user record.
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO users (id, email, password, role, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			user.ID,
			user.Email,
			user.Password,
			user.Role,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUserByID retrieves a user by ID.
func (m *Manager) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	// ARCHITECTURAL DISCOVERY: Read operations bypass the write channel and
	// run concurrently
	query := `
		SELECT id, email, password, role, created_at
		FROM users
		WHERE id = ?
	`

	var user types.User
	err := m.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetUserByCredentials retrieves a user matching email and password.
// FUNCTIONAL DISCOVERY: A credential mismatch surfaces as ErrUserNotFound so
// the API layer can map it to a rejection without distinguishing bad email
// from bad password
func (m *Manager) GetUserByCredentials(ctx context.Context, email, password string) (*types.User, error) {
	query := `
		SELECT id, email, password, role, created_at
		FROM users
		WHERE email = ? AND password = ?
	`

	var user types.User
	err := m.db.QueryRowContext(ctx, query, email, password).Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user by credentials: %w", err)
	}

	return &user, nil
}

// ListLearners returns all persisted learner accounts.
func (m *Manager) ListLearners(ctx context.Context) ([]*types.User, error) {
	query := `
		SELECT id, email, password, role, created_at
		FROM users
		WHERE role = ?
	`

	rows, err := m.db.QueryContext(ctx, query, types.RoleLearner)
	if err != nil {
		return nil, fmt.Errorf("failed to query learners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Password, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, &user)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// StoreAlert persists an alert record.
func (m *Manager) StoreAlert(ctx context.Context, alert *types.Alert) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO alerts (id, user_id, alert_type, message, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			alert.ID,
			alert.UserID,
			alert.AlertType,
			alert.Message,
			alert.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
		return nil
	})
}

// ListRecentAlerts returns the most recent alerts, newest first.
func (m *Manager) ListRecentAlerts(ctx context.Context, limit int) ([]*types.Alert, error) {
	query := `
		SELECT id, user_id, alert_type, message, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*types.Alert
	for rows.Next() {
		var alert types.Alert
		if err := rows.Scan(&alert.ID, &alert.UserID, &alert.AlertType, &alert.Message, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

// StoreEvent persists a behavior event with a server-generated row ID.
func (m *Manager) StoreEvent(ctx context.Context, event *types.BehaviorEvent) error {
	return m.executeWrite(func(db *sql.DB) error {
		// TECHNICAL DISCOVERY: JSON serialization for metadata keeps client
		// payloads flexible without schema churn
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		query := `
			INSERT INTO behavior_events (id, user_id, event_type, metadata, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			uuid.New().String(),
			event.UserID,
			event.EventType,
			string(metadataJSON),
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert behavior event: %w", err)
		}
		return nil
	})
}

// ListRecentEvents returns the most recent behavior events, newest first.
func (m *Manager) ListRecentEvents(ctx context.Context, limit int) ([]*types.EventRecord, error) {
	query := `
		SELECT id, user_id, event_type, metadata, created_at
		FROM behavior_events
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.EventRecord
	for rows.Next() {
		var record types.EventRecord
		var metadataJSON string
		if err := rows.Scan(&record.ID, &record.UserID, &record.EventType, &metadataJSON, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &record.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}

		events = append(events, &record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

// StoreControlAction persists a tutor control action.
func (m *Manager) StoreControlAction(ctx context.Context, action *types.ControlAction) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO control_actions (id, tutor_id, learner_id, action_type, new_mode, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			uuid.New().String(),
			action.TutorID,
			action.LearnerID,
			action.ActionType,
			action.NewMode,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert control action: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the store manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown waits for the writer
	// goroutine before closing the connection it writes through
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrency
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -64000",  // 64MB cache for classroom scale
		"PRAGMA temp_store = MEMORY",  // Use memory for temporary tables
		"PRAGMA foreign_keys = ON",    // Ensure referential integrity
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for write coordination
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
