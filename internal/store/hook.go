package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Hook binds a cue plugin to a session event.
type Hook struct {
	ID         string
	Event      string
	PluginName string
	Config     json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

// HookRepository provides CRUD operations for hook bindings.
type HookRepository struct {
	db *sql.DB
}

// Hooks returns the hook repository for this store.
func (s *Store) Hooks() *HookRepository {
	return &HookRepository{db: s.db}
}

// Create inserts a new hook binding. An empty ID is filled with a new UUID.
func (r *HookRepository) Create(h *Hook) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	h.CreatedAt = time.Now()

	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO hooks (id, event, plugin_name, config, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Event, h.PluginName, string(config), h.Enabled, h.CreatedAt,
	)
	return err
}

// GetByID retrieves a hook by its ID.
func (r *HookRepository) GetByID(id string) (*Hook, error) {
	row := r.db.QueryRow(
		`SELECT id, event, plugin_name, config, enabled, created_at
		 FROM hooks WHERE id = ?`,
		id,
	)

	h, err := scanHook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// List retrieves all hooks.
func (r *HookRepository) List() ([]*Hook, error) {
	return r.query(
		`SELECT id, event, plugin_name, config, enabled, created_at
		 FROM hooks ORDER BY created_at`,
	)
}

// ListByEvent retrieves the enabled hooks for one event.
func (r *HookRepository) ListByEvent(event string) ([]*Hook, error) {
	return r.query(
		`SELECT id, event, plugin_name, config, enabled, created_at
		 FROM hooks WHERE event = ? AND enabled = 1 ORDER BY created_at`,
		event,
	)
}

// SetEnabled toggles a hook.
func (r *HookRepository) SetEnabled(id string, enabled bool) error {
	result, err := r.db.Exec(`UPDATE hooks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a hook from the database by its ID.
func (r *HookRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM hooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *HookRepository) query(q string, args ...interface{}) ([]*Hook, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hooks, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHook(s scanner) (*Hook, error) {
	h := &Hook{}
	var config string
	var enabled int

	if err := s.Scan(&h.ID, &h.Event, &h.PluginName, &config, &enabled, &h.CreatedAt); err != nil {
		return nil, err
	}

	h.Config = json.RawMessage(config)
	h.Enabled = enabled != 0
	return h, nil
}
