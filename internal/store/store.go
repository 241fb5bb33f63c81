// Package store defines the task store contract the client core talks to and
// its implementation on top of the gorm repositories and a change feed.
//
// Every call is scoped by an explicit owner id. The store does no
// authorization of its own; it only refuses calls without an owner.
package store

import (
	"context"
	"errors"

	"daily-tracker/internal/feed"
	"daily-tracker/internal/model"
)

// ErrOwnerRequired is returned for calls that do not name the owning user.
var ErrOwnerRequired = errors.New("owner id is required")

// TaskStore is the remote task store as seen by one client.
type TaskStore interface {
	Create(ctx context.Context, task model.Task) (model.Task, error)
	Update(ctx context.Context, userID, id string, patch model.TaskPatch) (model.Task, error)
	Delete(ctx context.Context, userID, id string) error
	Query(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	// BulkResetRecurring clears completed on every recurring task of the user
	// and returns how many rows changed. Idempotent.
	BulkResetRecurring(ctx context.Context, userID string) (int64, error)
	// Subscribe streams changes to the user's tasks, including changes made
	// through this same store.
	Subscribe(ctx context.Context, userID string) (feed.Subscription[model.ChangeEvent], error)
}

// CompletionStore holds the per-day completion records shown on the calendar.
type CompletionStore interface {
	Record(ctx context.Context, rec model.CompletionRecord) (model.CompletionRecord, error)
	ListRange(ctx context.Context, userID string, from, to model.Date) ([]model.CompletionRecord, error)
	Subscribe(ctx context.Context, userID string) (feed.Subscription[model.CompletionEvent], error)
}
