package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/spotter/internal/exercise"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Session is a finished workout as stored in the database.
type Session struct {
	ID        string
	Exercise  string
	TotalReps int
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
	Advice    string
	// Reps is populated by Get; List leaves it nil.
	Reps []exercise.RepRecord
}

// SessionRepository provides CRUD operations for sessions and their reps.
type SessionRepository struct {
	store *Store
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

// Create inserts a session and all of its rep records in one transaction.
// An empty ID is filled with a new UUID.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.EndedAt.IsZero() {
		sess.EndedAt = time.Now()
	}
	sess.Attempts = len(sess.Reps)

	tx, err := r.store.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, exercise, total_reps, attempts, started_at, ended_at, advice)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Exercise, sess.TotalReps, sess.Attempts, sess.StartedAt, sess.EndedAt, sess.Advice,
	)
	if err != nil {
		return err
	}

	for i, rep := range sess.Reps {
		feedback, startAngles, minAngles, metrics, err := encodeRep(rep)
		if err != nil {
			return fmt.Errorf("encode rep %d: %w", i, err)
		}

		_, err = tx.Exec(
			`INSERT INTO reps (id, session_id, seq, duration, is_valid, feedback, start_angles, min_angles, metrics)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.store.newID(), sess.ID, i, rep.Duration, rep.IsValid, feedback, startAngles, minAngles, metrics,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get retrieves a session with its reps in order.
func (r *SessionRepository) Get(id string) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	err := r.store.db.QueryRow(
		`SELECT id, exercise, total_reps, attempts, started_at, ended_at, advice
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.Exercise, &sess.TotalReps, &sess.Attempts, &sess.StartedAt, &ended, &sess.Advice)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if ended.Valid {
		sess.EndedAt = ended.Time
	}

	reps, err := r.reps(id)
	if err != nil {
		return nil, err
	}
	sess.Reps = reps

	return sess, nil
}

func (r *SessionRepository) reps(sessionID string) ([]exercise.RepRecord, error) {
	rows, err := r.store.db.Query(
		`SELECT duration, is_valid, feedback, start_angles, min_angles, metrics
		 FROM reps WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reps := []exercise.RepRecord{}
	for rows.Next() {
		var rep exercise.RepRecord
		var valid int
		var feedback, startAngles, minAngles string
		var metrics sql.NullString

		if err := rows.Scan(&rep.Duration, &valid, &feedback, &startAngles, &minAngles, &metrics); err != nil {
			return nil, err
		}
		rep.IsValid = valid != 0

		if err := json.Unmarshal([]byte(feedback), &rep.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
		if err := json.Unmarshal([]byte(startAngles), &rep.StartAngles); err != nil {
			return nil, fmt.Errorf("decode start angles: %w", err)
		}
		if err := json.Unmarshal([]byte(minAngles), &rep.MinAngles); err != nil {
			return nil, fmt.Errorf("decode min angles: %w", err)
		}
		if metrics.Valid {
			rep.Metrics = &exercise.RepMetrics{}
			if err := json.Unmarshal([]byte(metrics.String), rep.Metrics); err != nil {
				return nil, fmt.Errorf("decode metrics: %w", err)
			}
		}

		reps = append(reps, rep)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reps, nil
}

// List retrieves all sessions, newest first, without their reps.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.store.db.Query(
		`SELECT id, exercise, total_reps, attempts, started_at, ended_at, advice
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var ended sql.NullTime

		err := rows.Scan(&sess.ID, &sess.Exercise, &sess.TotalReps, &sess.Attempts, &sess.StartedAt, &ended, &sess.Advice)
		if err != nil {
			return nil, err
		}
		if ended.Valid {
			sess.EndedAt = ended.Time
		}

		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// SetAdvice stores the coaching text for a session.
func (r *SessionRepository) SetAdvice(id, advice string) error {
	result, err := r.store.db.Exec(`UPDATE sessions SET advice = ? WHERE id = ?`, advice, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a session and its reps.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.store.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeRep(rep exercise.RepRecord) (feedback, startAngles, minAngles string, metrics sql.NullString, err error) {
	fb := rep.Feedback
	if fb == nil {
		fb = []string{}
	}

	encoded := make([]string, 3)
	for i, v := range []interface{}{fb, nonNil(rep.StartAngles), nonNil(rep.MinAngles)} {
		b, err := json.Marshal(v)
		if err != nil {
			return "", "", "", metrics, err
		}
		encoded[i] = string(b)
	}

	if rep.Metrics != nil {
		b, err := json.Marshal(rep.Metrics)
		if err != nil {
			return "", "", "", metrics, err
		}
		metrics = sql.NullString{String: string(b), Valid: true}
	}

	return encoded[0], encoded[1], encoded[2], metrics, nil
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
