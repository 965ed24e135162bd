// Package sqlstore implements the storage contract on database/sql.
// Supported drivers: sqlite3 (default), postgres, mysql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"taskboard/internal/store"
)

// timeLayout keeps a fixed-width fraction so that lexicographic ORDER BY
// on the stored strings matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
}

// Open connects, pings and bootstraps the schema.
func Open(driver, source string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	s := &Store{db: db, driver: driver, log: log}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", driver).Msg("database ready")
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createTables() error {
	// mysql needs sized key columns and rejects multi-statement Exec,
	// so statements run one by one.
	keyType := "TEXT"
	if s.driver == "mysql" {
		keyType = "VARCHAR(191)"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			username %s PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`, keyType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
			owner %s NOT NULL,
			id INTEGER NOT NULL,
			text TEXT NOT NULL,
			completed BOOLEAN NOT NULL,
			priority TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (owner, id)
		)`, keyType),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// q rewrites ? placeholders to $n for postgres. sqlite3 and mysql take ?
// as-is.
func (s *Store) q(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`),
		username, passwordHash, now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return store.User{}, store.ErrDuplicateUser
		}
		return store.User{}, fmt.Errorf("insert user: %w", err)
	}
	return store.User{Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (store.User, error) {
	var u store.User
	var created string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT username, password_hash, created_at FROM users WHERE username = ?`),
		username).Scan(&u.Username, &u.PasswordHash, &created)
	if err == sql.ErrNoRows {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func (s *Store) ListTasks(ctx context.Context, owner string) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id, text, completed, priority, created_at, updated_at
			FROM tasks WHERE owner = ? ORDER BY created_at DESC, id DESC`),
		owner)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (store.Task, error) {
	var t store.Task
	var priority, created, updated string
	if err := r.Scan(&t.ID, &t.Text, &t.Completed, &priority, &created, &updated); err != nil {
		return store.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Priority = store.Priority(priority)
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, owner, text string, priority store.Priority) (store.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		s.q(`SELECT COALESCE(MAX(id), 0) + 1 FROM tasks WHERE owner = ?`),
		owner).Scan(&next)
	if err != nil {
		return store.Task{}, fmt.Errorf("next task id: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		s.q(`INSERT INTO tasks (owner, id, text, completed, priority, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
		owner, next, text, false, string(priority),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return store.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Task{}, fmt.Errorf("commit: %w", err)
	}
	return store.Task{
		ID: next, Text: text, Completed: false, Priority: priority,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *Store) UpdateTask(ctx context.Context, owner string, id int, patch store.TaskPatch) (store.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	t, err := s.getTask(ctx, tx, owner, id)
	if err != nil {
		return store.Task{}, err
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

	_, err = tx.ExecContext(ctx,
		s.q(`UPDATE tasks SET text = ?, completed = ?, priority = ?, updated_at = ?
			WHERE owner = ? AND id = ?`),
		t.Text, t.Completed, string(t.Priority), t.UpdatedAt.Format(timeLayout),
		owner, id)
	if err != nil {
		return store.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Task{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, owner string, id int) (store.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	t, err := s.getTask(ctx, tx, owner, id)
	if err != nil {
		return store.Task{}, err
	}
	_, err = tx.ExecContext(ctx,
		s.q(`DELETE FROM tasks WHERE owner = ? AND id = ?`), owner, id)
	if err != nil {
		return store.Task{}, fmt.Errorf("delete task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Task{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *Store) getTask(ctx context.Context, tx *sql.Tx, owner string, id int) (store.Task, error) {
	row := tx.QueryRowContext(ctx,
		s.q(`SELECT id, text, completed, priority, created_at, updated_at
			FROM tasks WHERE owner = ? AND id = ?`),
		owner, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Task{}, store.ErrNotFound
	}
	if err != nil {
		return store.Task{}, err
	}
	return t, nil
}

func (s *Store) ClearCompleted(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM tasks WHERE owner = ? AND completed = ?`),
		owner, true)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return int(n), nil
}
