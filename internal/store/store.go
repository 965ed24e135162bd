// Package store defines the entities and the backend contract shared by the
// relational and document storage implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateUser is returned when a username is already registered.
	ErrDuplicateUser = errors.New("username already exists")
	// ErrNotFound is returned for any record the caller may not see,
	// whether it is absent or owned by someone else.
	ErrNotFound = errors.New("not found")
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a priority value. The empty string maps to the
// default, medium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Task struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Text      *string
	Completed *bool
	Priority  *Priority
}

// UserStore persists credentials keyed by username.
type UserStore interface {
	// CreateUser registers a new user and initializes an empty task
	// collection for it. Returns ErrDuplicateUser without side effects
	// if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	// GetUser returns ErrNotFound for unknown usernames.
	GetUser(ctx context.Context, username string) (User, error)
}

// TaskStore persists tasks scoped to an owner. Every operation filters by
// owner: a task belonging to another user behaves exactly like a missing one.
type TaskStore interface {
	// ListTasks returns the owner's tasks, newest first.
	ListTasks(ctx context.Context, owner string) ([]Task, error)
	// CreateTask assigns the next id in the owner's collection,
	// max(existing)+1 or 1 when empty. Ids are never reused.
	CreateTask(ctx context.Context, owner, text string, priority Priority) (Task, error)
	// UpdateTask applies the patch and refreshes UpdatedAt even when the
	// patch is empty. The full post-update record is returned.
	UpdateTask(ctx context.Context, owner string, id int, patch TaskPatch) (Task, error)
	// DeleteTask removes and returns the record.
	DeleteTask(ctx context.Context, owner string, id int) (Task, error)
	// ClearCompleted removes every completed task and reports how many
	// were removed.
	ClearCompleted(ctx context.Context, owner string) (int, error)
}

// Store is a full backend, interchangeable between the relational and the
// document implementation.
type Store interface {
	UserStore
	TaskStore
	Close() error
}
