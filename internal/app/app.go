// Package app provides the live-session layer of spotter. It owns the running
// workout sessions and connects them to persistence, coaching and cue hooks.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/coach"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/pose"
	"github.com/ayusman/spotter/internal/session"
	"github.com/ayusman/spotter/internal/store"
)

// ErrSessionNotFound is returned for an unknown or already stopped live session.
var ErrSessionNotFound = errors.New("session not found")

// Config holds the collaborators of the application. Everything except
// Registry is optional.
type Config struct {
	Store      *store.Store
	Registry   *exercise.Registry
	Thresholds exercise.Thresholds
	Stabilizer classify.StabilizerConfig
	Classifier classify.Classifier
	Coach      *coach.Client
	Hooks      *plugin.Dispatcher
	Clock      func() time.Time

	// ClassifierTimeout bounds each model call; zero uses classify.DefaultFrameTimeout.
	ClassifierTimeout time.Duration
}

// FrameInput is one landmark frame as submitted by a client. Both timestamp
// fields are epoch milliseconds; Timestamp is the key browser recordings
// use and TimestampMs wins when both are set. Without either the frame is
// stamped with the arrival time.
type FrameInput struct {
	TimestampMs *int64     `json:"timestamp_ms,omitempty"`
	Timestamp   *int64     `json:"timestamp,omitempty"`
	Landmarks   pose.Frame `json:"landmarks"`
}

// stamp returns the frame time, or fallback when the frame carries none.
func (in FrameInput) stamp(fallback func() time.Time) time.Time {
	switch {
	case in.TimestampMs != nil:
		return time.UnixMilli(*in.TimestampMs)
	case in.Timestamp != nil:
		return time.UnixMilli(*in.Timestamp)
	default:
		return fallback()
	}
}

// Info describes a live session.
type Info struct {
	ID        string    `json:"id"`
	Exercise  string    `json:"exercise"`
	StartedAt time.Time `json:"started_at"`
}

// Result is what a stopped session produces.
type Result struct {
	ID      string          `json:"id"`
	Summary session.Summary `json:"summary"`
	Stats   session.Stats   `json:"stats"`
	Advice  string          `json:"advice,omitempty"`
	Stored  bool            `json:"stored"`
}

// live is one running session. Frames for a session are serialized by mu;
// different sessions never share state.
type live struct {
	mu      sync.Mutex
	id      string
	started time.Time
	now     time.Time
	session *session.Session
}

func (l *live) clock() time.Time {
	return l.now
}

// App is the registry of live sessions.
type App struct {
	config   Config
	mu       sync.RWMutex
	sessions map[string]*live
}

// New creates a new App. Zero-valued tuning falls back to the defaults.
func New(config Config) *App {
	if config.Registry == nil {
		config.Registry = exercise.DefaultRegistry()
	}
	if config.Thresholds == (exercise.Thresholds{}) {
		config.Thresholds = exercise.DefaultThresholds()
	}
	if config.Stabilizer == (classify.StabilizerConfig{}) {
		config.Stabilizer = classify.DefaultStabilizerConfig()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &App{
		config:   config,
		sessions: make(map[string]*live),
	}
}

// Exercises returns the identifiers that Start accepts.
func (a *App) Exercises() []string {
	return a.config.Registry.Names()
}

// Store returns the configured store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Start begins a new live session for the named exercise.
func (a *App) Start(name string) (Info, error) {
	l := &live{id: uuid.New().String(), started: a.config.Clock()}
	l.now = l.started

	p, err := a.config.Registry.New(name,
		exercise.WithThresholds(a.config.Thresholds),
		exercise.WithClock(l.clock),
	)
	if err != nil {
		return Info{}, err
	}

	opts := []session.Option{session.WithStabilizerConfig(a.config.Stabilizer)}
	if a.config.Classifier != nil {
		opts = append(opts,
			session.WithClassifier(a.config.Classifier),
			session.WithClassifierTimeout(a.config.ClassifierTimeout),
		)
	}
	l.session = session.New(p, opts...)

	a.mu.Lock()
	a.sessions[l.id] = l
	a.mu.Unlock()

	monitoring.Logf("Session %s started (%s)", l.id, p.Name())
	return Info{ID: l.id, Exercise: p.Name(), StartedAt: l.started}, nil
}

// Active lists the live sessions.
func (a *App) Active() []Info {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Info, 0, len(a.sessions))
	for _, l := range a.sessions {
		out = append(out, Info{ID: l.id, Exercise: l.session.Exercise(), StartedAt: l.started})
	}
	return out
}

func (a *App) get(id string) (*live, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	l, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return l, nil
}

// Frame feeds one frame into a live session.
func (a *App) Frame(ctx context.Context, id string, in FrameInput) (session.Update, error) {
	l, err := a.get(id)
	if err != nil {
		return session.Update{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = in.stamp(a.config.Clock)

	u, err := l.session.HandleFrame(ctx, in.Landmarks, l.now)
	if err != nil {
		return u, err
	}
	if u.Completed != nil {
		a.fireRep(l, u)
	}
	return u, nil
}

// Snapshot returns the latest update of a live session.
func (a *App) Snapshot(id string) (session.Update, error) {
	l, err := a.get(id)
	if err != nil {
		return session.Update{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Last(), nil
}

// Reset clears the reps of a live session without ending it.
func (a *App) Reset(id string) (session.Update, error) {
	l, err := a.get(id)
	if err != nil {
		return session.Update{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.session.Reset()
	monitoring.Logf("Session %s reset", id)
	return l.session.Last(), nil
}

// Stop ends a live session. The summary is persisted when a store is
// configured and sent to the coach when one is configured; a coaching
// failure leaves the advice empty but does not fail the stop.
func (a *App) Stop(ctx context.Context, id string) (*Result, error) {
	a.mu.Lock()
	l, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	l.mu.Lock()
	summary := l.session.Stop()
	l.mu.Unlock()

	res := &Result{ID: id, Summary: summary, Stats: session.ComputeStats(summary)}
	monitoring.Logf("Session %s stopped: %d reps, %d attempts", id, summary.TotalReps, len(summary.Reps))

	if s := a.config.Store; s != nil {
		rec := &store.Session{
			ID:        id,
			Exercise:  summary.ExerciseName,
			TotalReps: summary.TotalReps,
			StartedAt: l.started,
			EndedAt:   a.config.Clock(),
			Reps:      summary.Reps,
		}
		if err := s.Sessions().Create(rec); err != nil {
			return res, fmt.Errorf("persist session: %w", err)
		}
		res.Stored = true
	}

	if c := a.config.Coach; c != nil {
		advice, err := c.Analyze(ctx, summary)
		if err != nil {
			monitoring.Logf("Coach analysis for %s failed: %v", id, err)
		} else {
			res.Advice = advice.Text
			if res.Stored {
				if err := a.config.Store.Sessions().SetAdvice(id, advice.Text); err != nil {
					monitoring.Logf("Failed to store advice for %s: %v", id, err)
				}
			}
		}
	}

	if a.config.Hooks != nil {
		a.config.Hooks.Fire(plugin.Request{
			Event:    plugin.EventSessionCompleted,
			Session:  id,
			Exercise: summary.ExerciseName,
			Reps:     summary.TotalReps,
			Message:  res.Advice,
		})
	}
	return res, nil
}

// Close stops every live session and waits for running hooks.
func (a *App) Close(ctx context.Context) {
	for _, info := range a.Active() {
		if _, err := a.Stop(ctx, info.ID); err != nil {
			monitoring.Logf("Failed to stop session %s: %v", info.ID, err)
		}
	}
	if a.config.Hooks != nil {
		a.config.Hooks.Wait()
	}
}

func (a *App) fireRep(l *live, u session.Update) {
	if a.config.Hooks == nil {
		return
	}

	req := plugin.Request{
		Session:  l.id,
		Exercise: l.session.Exercise(),
		Reps:     u.State.Reps,
	}
	if u.Completed.IsValid {
		req.Event = plugin.EventRepCompleted
		if u.Cue != nil {
			req.Message = u.Cue.Text
		}
	} else {
		req.Event = plugin.EventRepFailed
		req.Message = strings.Join(u.Completed.Feedback, " ")
	}
	a.config.Hooks.Fire(req)
}

// discard drops a live session without persisting it.
func (a *App) discard(id string) {
	a.mu.Lock()
	l, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()

	if ok {
		l.mu.Lock()
		l.session.Stop()
		l.mu.Unlock()
		monitoring.Logf("Session %s discarded", id)
	}
}
