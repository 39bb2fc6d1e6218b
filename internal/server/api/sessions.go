package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/spotter/internal/app"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/pose"
	"github.com/ayusman/spotter/internal/session"
	"github.com/ayusman/spotter/internal/store"
)

// maxFrameBytes bounds a single frame request body.
const maxFrameBytes = 64 * 1024

// SessionHandler serves live sessions from the app and finished sessions
// from the store.
type SessionHandler struct {
	app   *app.App
	store *store.Store
}

// NewSessionHandler creates a SessionHandler. s may be nil, in which case
// the stored-session endpoints answer 503.
func NewSessionHandler(a *app.App, s *store.Store) *SessionHandler {
	return &SessionHandler{app: a, store: s}
}

type startSessionRequest struct {
	Exercise string `json:"exercise"`
}

type sessionResponse struct {
	ID        string               `json:"id"`
	Exercise  string               `json:"exercise"`
	TotalReps int                  `json:"total_reps"`
	Attempts  int                  `json:"attempts"`
	StartedAt string               `json:"started_at"`
	EndedAt   string               `json:"ended_at,omitempty"`
	Advice    string               `json:"advice,omitempty"`
	Reps      []exercise.RepRecord `json:"reps,omitempty"`
	Stats     *session.Stats       `json:"stats,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Exercise:  s.Exercise,
		TotalReps: s.TotalReps,
		Attempts:  s.Attempts,
		StartedAt: s.StartedAt.Format(timeLayout),
		Advice:    s.Advice,
		Reps:      s.Reps,
	}
	if !s.EndedAt.IsZero() {
		resp.EndedAt = s.EndedAt.Format(timeLayout)
	}
	if s.Reps != nil {
		stats := session.ComputeStats(session.Summary{ExerciseName: s.Exercise, TotalReps: s.TotalReps, Reps: s.Reps})
		resp.Stats = &stats
	}
	return resp
}

// Exercises handles GET /api/exercises.
func (h *SessionHandler) Exercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"exercises": h.app.Exercises()})
}

// Start handles POST /api/sessions and begins a live session.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Exercise == "" {
		writeError(w, http.StatusBadRequest, "exercise is required")
		return
	}

	info, err := h.app.Start(req.Exercise)
	if err != nil {
		if errors.Is(err, exercise.ErrUnknownExercise) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

// Frame handles POST /api/sessions/{id}/frames.
func (h *SessionHandler) Frame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)

	var in app.FrameInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		if errors.Is(err, pose.ErrMalformed) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	u, err := h.app.Frame(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.liveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Live handles GET /api/sessions/{id}/live and returns the latest update.
func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.liveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Reset handles POST /api/sessions/{id}/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Reset(chi.URLParam(r, "id"))
	if err != nil {
		h.liveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Stop handles POST /api/sessions/{id}/stop.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if res != nil {
			monitoring.Logf("Stop: %v", err)
			writeJSON(w, http.StatusOK, res)
			return
		}
		h.liveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) liveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, exercise.ErrMalformedFrame):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrStopped):
		writeError(w, http.StatusConflict, "Session stopped")
	default:
		monitoring.Logf("Live session error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process frame")
	}
}

// List handles GET /api/sessions and returns stored sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/sessions/{id} and returns a stored session with its reps.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	s, err := h.store.Sessions().Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// Delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	if err := h.store.Sessions().Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Session history is disabled")
		return false
	}
	return true
}
