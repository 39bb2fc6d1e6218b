package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/store"
)

// HookHandler handles HTTP requests for hook bindings.
type HookHandler struct {
	store   *store.Store
	plugins *plugin.Manager
}

// NewHookHandler creates a HookHandler. When plugins is non-nil, new
// bindings must name a discovered plugin.
func NewHookHandler(s *store.Store, plugins *plugin.Manager) *HookHandler {
	return &HookHandler{store: s, plugins: plugins}
}

type createHookRequest struct {
	Event      plugin.Event    `json:"event"`
	PluginName string          `json:"plugin_name"`
	Config     json.RawMessage `json:"config"`
}

type updateHookRequest struct {
	Enabled *bool `json:"enabled"`
}

type hookResponse struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	PluginName string          `json:"plugin_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  string          `json:"created_at"`
}

type listHooksResponse struct {
	Hooks []hookResponse `json:"hooks"`
}

func toHookResponse(h *store.Hook) hookResponse {
	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return hookResponse{
		ID:         h.ID,
		Event:      h.Event,
		PluginName: h.PluginName,
		Config:     config,
		Enabled:    h.Enabled,
		CreatedAt:  h.CreatedAt.Format(timeLayout),
	}
}

// List handles GET /api/hooks.
func (h *HookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.store.Hooks().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hooks")
		return
	}

	response := listHooksResponse{Hooks: make([]hookResponse, 0, len(hooks))}
	for _, hk := range hooks {
		response.Hooks = append(response.Hooks, toHookResponse(hk))
	}
	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/hooks/{id}.
func (h *HookHandler) Get(w http.ResponseWriter, r *http.Request) {
	hook, err := h.store.Hooks().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get hook")
		return
	}
	writeJSON(w, http.StatusOK, toHookResponse(hook))
}

// Create handles POST /api/hooks.
func (h *HookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if !req.Event.Valid() {
		writeError(w, http.StatusBadRequest, "event must be one of rep_completed, rep_failed, session_completed")
		return
	}
	if req.PluginName == "" {
		writeError(w, http.StatusBadRequest, "plugin_name is required")
		return
	}
	if h.plugins != nil {
		if _, err := h.plugins.Get(req.PluginName); err != nil {
			writeError(w, http.StatusBadRequest, "Plugin not found")
			return
		}
	}

	hook := &store.Hook{
		Event:      string(req.Event),
		PluginName: req.PluginName,
		Config:     req.Config,
		Enabled:    true,
	}
	if err := h.store.Hooks().Create(hook); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create hook")
		return
	}

	writeJSON(w, http.StatusCreated, toHookResponse(hook))
}

// Update handles PATCH /api/hooks/{id}; only the enabled flag can change.
func (h *HookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateHookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.store.Hooks().SetEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update hook")
		return
	}

	hook, err := h.store.Hooks().GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hook")
		return
	}
	writeJSON(w, http.StatusOK, toHookResponse(hook))
}

// Delete handles DELETE /api/hooks/{id}.
func (h *HookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Hooks().Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete hook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pluginResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Events      []plugin.Event `json:"events"`
}

// Plugins handles GET /api/plugins and lists the discovered cue plugins.
func (h *HookHandler) Plugins(w http.ResponseWriter, r *http.Request) {
	out := make([]pluginResponse, 0)
	if h.plugins != nil {
		for _, p := range h.plugins.List() {
			events := p.Manifest.Events
			if events == nil {
				events = []plugin.Event{}
			}
			out = append(out, pluginResponse{
				Name:        p.Manifest.Name,
				Version:     p.Manifest.Version,
				Description: p.Manifest.Description,
				Events:      events,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string][]pluginResponse{"plugins": out})
}
