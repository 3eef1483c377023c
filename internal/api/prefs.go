package api

import (
	"context"
	"encoding/json"
	"net/http"
)

const languagePref = "language"

// PrefStore persists small key/value preferences across restarts.
type PrefStore interface {
	GetPref(ctx context.Context, key string) (string, error)
	SetPref(ctx context.Context, key, value string) error
}

// PrefsHandler serves the narration language preference. Changing it takes
// effect on the next start, since providers are built for one language.
type PrefsHandler struct {
	store  PrefStore
	active string
}

func NewPrefsHandler(store PrefStore, activeLanguage string) *PrefsHandler {
	return &PrefsHandler{store: store, active: activeLanguage}
}

// LanguageResponse reports the active and pending narration language.
type LanguageResponse struct {
	Language string `json:"language"`
	Pending  string `json:"pending,omitempty"`
}

// HandleGet handles GET /api/language.
func (h *PrefsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	resp := LanguageResponse{Language: h.active}
	if stored, err := h.store.GetPref(r.Context(), languagePref); err == nil && stored != "" && stored != h.active {
		resp.Pending = stored
	}
	writeJSON(w, resp)
}

// HandleSet handles POST /api/language.
func (h *PrefsHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.SetPref(r.Context(), languagePref, req.Language); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, LanguageResponse{Language: h.active, Pending: req.Language})
}
