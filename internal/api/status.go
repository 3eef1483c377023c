package api

import (
	"net/http"

	"walktale/pkg/model"
	"walktale/pkg/route"
)

// RouteStatusProvider reports progress toward the destination.
type RouteStatusProvider interface {
	Status(pos model.Position) route.Status
}

// SessionInfo is the slice of the session manager the status endpoint needs.
type SessionInfo interface {
	Active() bool
	TourID() string
}

// StatusHandler serves the combined guide state for the companion app.
type StatusHandler struct {
	guide   TourController
	routes  RouteStatusProvider
	session SessionInfo
}

func NewStatusHandler(g TourController, routes RouteStatusProvider, session SessionInfo) *StatusHandler {
	return &StatusHandler{guide: g, routes: routes, session: session}
}

// StatusResponse is the API response structure.
type StatusResponse struct {
	Touring  bool            `json:"touring"`
	TourID   string          `json:"tour_id,omitempty"`
	Position *model.Position `json:"position,omitempty"`
	Route    *route.Status   `json:"route,omitempty"`
}

// Handle handles GET /api/status.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Touring: h.guide.Touring()}
	if h.session.Active() {
		resp.TourID = h.session.TourID()
	}
	if pos, ok := h.guide.CurrentPosition(); ok {
		resp.Position = &pos
		if h.routes != nil {
			st := h.routes.Status(pos)
			resp.Route = &st
		}
	}
	writeJSON(w, resp)
}
