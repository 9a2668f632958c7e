package interfaces

import (
	"context"

	"tutorhub/pkg/types"
)

// Store is the record store the hub persists into and queries from.
// ARCHITECTURAL DISCOVERY: The live path treats every write as best-effort;
// callers log store errors and proceed, they never fail the request on them
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByID(ctx context.Context, userID string) (*types.User, error)
	GetUserByCredentials(ctx context.Context, email, password string) (*types.User, error)
	ListLearners(ctx context.Context) ([]*types.User, error)

	// Alerts
	StoreAlert(ctx context.Context, alert *types.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]*types.Alert, error)

	// Behavior events
	StoreEvent(ctx context.Context, event *types.BehaviorEvent) error
	ListRecentEvents(ctx context.Context, limit int) ([]*types.EventRecord, error)

	// Control actions
	StoreControlAction(ctx context.Context, action *types.ControlAction) error

	HealthCheck(ctx context.Context) error
	Close() error
}
