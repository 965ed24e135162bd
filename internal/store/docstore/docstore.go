// Package docstore implements the storage contract on flat JSON documents,
// one file per collection, rewritten wholesale on every mutation.
//
// A mutex serializes requests within one process. Writers in separate
// processes still race: the last full rewrite wins. Missing, unparsable or
// schema-invalid documents are logged and treated as empty collections.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"taskboard/internal/store"
)

const (
	usersFile = "users.json"
	tasksFile = "tasks.json"
)

const tasksSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": {
		"type": "array",
		"items": {
			"type": "object",
			"required": ["id", "text", "completed", "priority", "created_at", "updated_at"],
			"properties": {
				"id": {"type": "integer", "minimum": 1},
				"text": {"type": "string"},
				"completed": {"type": "boolean"},
				"priority": {"enum": ["low", "medium", "high"]},
				"created_at": {"type": "string"},
				"updated_at": {"type": "string"}
			}
		}
	}
}`

type userRecord struct {
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store struct {
	mu     sync.Mutex
	dir    string
	schema *jsonschema.Schema
	log    zerolog.Logger
}

// Open prepares the data directory and compiles the tasks document schema.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tasks.schema.json", strings.NewReader(tasksSchema)); err != nil {
		return nil, fmt.Errorf("add tasks schema: %w", err)
	}
	schema, err := compiler.Compile("tasks.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile tasks schema: %w", err)
	}
	log.Info().Str("dir", dir).Msg("document store ready")
	return &Store{dir: dir, schema: schema, log: log}, nil
}

func (s *Store) Close() error { return nil }

// loadUsers reads the full credentials document, failing open to an empty
// mapping.
func (s *Store) loadUsers() map[string]userRecord {
	path := filepath.Join(s.dir, usersFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", usersFile).Msg("unreadable document, starting empty")
		}
		return map[string]userRecord{}
	}
	users := map[string]userRecord{}
	if err := json.Unmarshal(data, &users); err != nil {
		s.log.Warn().Err(err).Str("file", usersFile).Msg("corrupt document, starting empty")
		return map[string]userRecord{}
	}
	return users
}

// loadTasks reads the full tasks document, failing open to an empty mapping.
// The document is checked against the embedded schema before use.
func (s *Store) loadTasks() map[string][]store.Task {
	path := filepath.Join(s.dir, tasksFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", tasksFile).Msg("unreadable document, starting empty")
		}
		return map[string][]store.Task{}
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn().Err(err).Str("file", tasksFile).Msg("corrupt document, starting empty")
		return map[string][]store.Task{}
	}
	if err := s.schema.Validate(raw); err != nil {
		s.log.Warn().Err(err).Str("file", tasksFile).Msg("document failed schema check, starting empty")
		return map[string][]store.Task{}
	}
	tasks := map[string][]store.Task{}
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.log.Warn().Err(err).Str("file", tasksFile).Msg("corrupt document, starting empty")
		return map[string][]store.Task{}
	}
	return tasks
}

func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	if _, ok := users[username]; ok {
		return store.User{}, store.ErrDuplicateUser
	}
	now := time.Now().UTC()
	users[username] = userRecord{PasswordHash: passwordHash, CreatedAt: now}
	if err := s.save(usersFile, users); err != nil {
		return store.User{}, err
	}

	tasks := s.loadTasks()
	if _, ok := tasks[username]; !ok {
		tasks[username] = []store.Task{}
		if err := s.save(tasksFile, tasks); err != nil {
			return store.User{}, err
		}
	}
	return store.User{Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.loadUsers()[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{Username: username, PasswordHash: rec.PasswordHash, CreatedAt: rec.CreatedAt}, nil
}

func (s *Store) ListTasks(ctx context.Context, owner string) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.loadTasks()[owner]
	tasks := make([]store.Task, len(owned))
	copy(tasks, owned)
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

func (s *Store) CreateTask(ctx context.Context, owner, text string, priority store.Priority) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.loadTasks()
	next := 1
	for _, t := range tasks[owner] {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	now := time.Now().UTC()
	task := store.Task{
		ID: next, Text: text, Completed: false, Priority: priority,
		CreatedAt: now, UpdatedAt: now,
	}
	tasks[owner] = append(tasks[owner], task)
	if err := s.save(tasksFile, tasks); err != nil {
		return store.Task{}, err
	}
	return task, nil
}

func (s *Store) UpdateTask(ctx context.Context, owner string, id int, patch store.TaskPatch) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.loadTasks()
	for i, t := range tasks[owner] {
		if t.ID != id {
			continue
		}
		if patch.Text != nil {
			t.Text = *patch.Text
		}
		if patch.Completed != nil {
			t.Completed = *patch.Completed
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		t.UpdatedAt = time.Now().UTC()
		tasks[owner][i] = t
		if err := s.save(tasksFile, tasks); err != nil {
			return store.Task{}, err
		}
		return t, nil
	}
	return store.Task{}, store.ErrNotFound
}

func (s *Store) DeleteTask(ctx context.Context, owner string, id int) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.loadTasks()
	for i, t := range tasks[owner] {
		if t.ID != id {
			continue
		}
		tasks[owner] = append(tasks[owner][:i], tasks[owner][i+1:]...)
		if err := s.save(tasksFile, tasks); err != nil {
			return store.Task{}, err
		}
		return t, nil
	}
	return store.Task{}, store.ErrNotFound
}

func (s *Store) ClearCompleted(ctx context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.loadTasks()
	kept := tasks[owner][:0:0]
	removed := 0
	for _, t := range tasks[owner] {
		if t.Completed {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed == 0 {
		return 0, nil
	}
	tasks[owner] = kept
	if err := s.save(tasksFile, tasks); err != nil {
		return 0, err
	}
	return removed, nil
}
