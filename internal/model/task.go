package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task represents a single todo item owned by one user.
type Task struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;size:36;not null" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	Completed bool      `gorm:"not null" json:"completed"`
	Recurring bool      `gorm:"not null;index" json:"recurring"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name used by the hosted todo schema.
func (Task) TableName() string {
	return "todos"
}

// BeforeCreate assigns an id when the caller did not pick one.
func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// NewTask builds a task with the defaults of a freshly added item.
func NewTask(userID, title string, now time.Time) Task {
	return Task{
		ID:        NewID(),
		UserID:    userID,
		Title:     strings.TrimSpace(title),
		Completed: false,
		Recurring: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// TaskPatch lists the fields a partial update may touch. Nil means unchanged.
type TaskPatch struct {
	Completed *bool
	Recurring *bool
}

// Apply returns a copy of t with the patch applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Recurring != nil {
		t.Recurring = *p.Recurring
	}
	return t
}

// Columns returns the column/value map used for the UPDATE statement.
func (p TaskPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 2)
	if p.Completed != nil {
		cols["completed"] = *p.Completed
	}
	if p.Recurring != nil {
		cols["recurring"] = *p.Recurring
	}
	return cols
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Completed == nil && p.Recurring == nil
}

// TaskFilter narrows a task query. UserID is mandatory.
type TaskFilter struct {
	UserID    string
	Completed *bool
	Recurring *bool
}

// Bool is a small helper for building patches and filters.
func Bool(v bool) *bool {
	return &v
}
