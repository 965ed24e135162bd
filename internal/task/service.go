// Package task implements the task operations on top of a storage backend.
package task

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"taskboard/internal/cache"
	"taskboard/internal/store"
)

// ErrEmptyText rejects task creation without text.
var ErrEmptyText = errors.New("task text is required")

// Service is a stateless facade over a TaskStore. Every call takes the
// owner resolved for the request; the service never consults ambient state.
type Service struct {
	store store.TaskStore
	cache cache.TaskCache
	log   zerolog.Logger
}

func NewService(s store.TaskStore, c cache.TaskCache, log zerolog.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{store: s, cache: c, log: log}
}

// List returns the owner's tasks, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]store.Task, error) {
	if tasks, ok := s.cache.Get(ctx, owner); ok {
		return tasks, nil
	}
	tasks, err := s.store.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, owner, tasks)
	return tasks, nil
}

// Create validates the input and stores a new task.
func (s *Service) Create(ctx context.Context, owner, text string, priority store.Priority) (store.Task, error) {
	if text == "" {
		return store.Task{}, ErrEmptyText
	}
	t, err := s.store.CreateTask(ctx, owner, text, priority)
	if err != nil {
		return store.Task{}, err
	}
	s.cache.Invalidate(ctx, owner)
	s.log.Debug().Str("owner", owner).Int("id", t.ID).Msg("task created")
	return t, nil
}

// Update applies a partial patch. An empty patch still refreshes the
// task's updated_at.
func (s *Service) Update(ctx context.Context, owner string, id int, patch store.TaskPatch) (store.Task, error) {
	t, err := s.store.UpdateTask(ctx, owner, id, patch)
	if err != nil {
		return store.Task{}, err
	}
	s.cache.Invalidate(ctx, owner)
	return t, nil
}

// Delete removes a task and returns the removed record.
func (s *Service) Delete(ctx context.Context, owner string, id int) (store.Task, error) {
	t, err := s.store.DeleteTask(ctx, owner, id)
	if err != nil {
		return store.Task{}, err
	}
	s.cache.Invalidate(ctx, owner)
	return t, nil
}

// ClearCompleted removes all completed tasks and reports how many were
// removed.
func (s *Service) ClearCompleted(ctx context.Context, owner string) (int, error) {
	n, err := s.store.ClearCompleted(ctx, owner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Invalidate(ctx, owner)
	}
	return n, nil
}
