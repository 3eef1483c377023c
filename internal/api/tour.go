package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"walktale/pkg/guide"
	"walktale/pkg/model"
)

// TourController is the slice of the guide the tour endpoints need.
type TourController interface {
	StartTour(pos model.Position) (string, error)
	StopTour() (*model.TourReport, error)
	Touring() bool
	CurrentPosition() (model.Position, bool)
}

// DestinationController manages the walking destination.
type DestinationController interface {
	SetDestination(ctx context.Context, start, dest model.Position, name string) (*model.Route, error)
	ClearDestination()
}

// Concierge answers free-form questions and writes the travel diary.
type Concierge interface {
	AskGuide(ctx context.Context, pos model.Position, question string) (string, error)
	TravelDiary(ctx context.Context, report *model.TourReport) (string, error)
}

// TourHandler handles tour lifecycle and destination endpoints.
type TourHandler struct {
	guide     TourController
	routes    DestinationController
	concierge Concierge
}

func NewTourHandler(g TourController, routes DestinationController, concierge Concierge) *TourHandler {
	return &TourHandler{guide: g, routes: routes, concierge: concierge}
}

// StartRequest carries the starting fix for a new tour.
type StartRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
}

// HandleStart handles POST /api/tour/start.
func (h *TourHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.guide.StartTour(model.NewPosition(req.Lat, req.Lon, req.AccuracyM, timeNow()))
	if errors.Is(err, guide.ErrTourActive) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"tour_id": id})
}

// StopResponse returns the tour report plus the generated diary text.
type StopResponse struct {
	Report *model.TourReport `json:"report"`
	Diary  string            `json:"diary,omitempty"`
}

// HandleStop handles POST /api/tour/stop.
func (h *TourHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	report, err := h.guide.StopTour()
	if errors.Is(err, guide.ErrNoTour) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.routes.ClearDestination()

	resp := StopResponse{Report: report}
	if h.concierge != nil {
		diary, err := h.concierge.TravelDiary(r.Context(), report)
		if err != nil {
			// The report still stands; the diary is a bonus.
			slog.Warn("travel diary generation failed", "error", err)
		} else {
			resp.Diary = diary
		}
	}
	writeJSON(w, resp)
}

// AskRequest is a free-form question for the guide.
type AskRequest struct {
	Question string `json:"question"`
}

// HandleAsk handles POST /api/tour/ask.
func (h *TourHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if h.concierge == nil {
		http.Error(w, "no language model configured", http.StatusServiceUnavailable)
		return
	}
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, ok := h.guide.CurrentPosition()
	if !ok {
		http.Error(w, "no position known yet", http.StatusConflict)
		return
	}
	answer, err := h.concierge.AskGuide(r.Context(), pos, req.Question)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"answer": answer})
}

// DestinationRequest names a walking destination.
type DestinationRequest struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// HandleSetDestination handles POST /api/destination.
func (h *TourHandler) HandleSetDestination(w http.ResponseWriter, r *http.Request) {
	var req DestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start, ok := h.guide.CurrentPosition()
	if !ok {
		http.Error(w, "no position known yet", http.StatusConflict)
		return
	}
	dest := model.NewPosition(req.Lat, req.Lon, 0, timeNow())
	route, err := h.routes.SetDestination(r.Context(), start, dest, req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, route)
}

// HandleClearDestination handles DELETE /api/destination.
func (h *TourHandler) HandleClearDestination(w http.ResponseWriter, r *http.Request) {
	h.routes.ClearDestination()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
