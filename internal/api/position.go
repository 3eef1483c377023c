package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"walktale/pkg/model"
)

var timeNow = time.Now

// PositionSink receives GPS fixes from the companion device.
type PositionSink interface {
	OnPosition(pos model.Position)
}

// RouteSink feeds fixes to the route tracker for deviation and arrival
// detection.
type RouteSink interface {
	OnPosition(ctx context.Context, pos model.Position)
}

// PositionHandler ingests the GPS stream, over plain POSTs or a websocket.
type PositionHandler struct {
	guide    PositionSink
	routes   RouteSink
	upgrader websocket.Upgrader
}

func NewPositionHandler(g PositionSink, routes RouteSink) *PositionHandler {
	return &PositionHandler{
		guide:  g,
		routes: routes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The companion app connects from its own origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *PositionHandler) dispatch(ctx context.Context, pos model.Position) {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = timeNow()
	}
	h.guide.OnPosition(pos)
	if h.routes != nil {
		h.routes.OnPosition(ctx, pos)
	}
}

// HandlePost handles POST /api/position, one fix per request.
func (h *PositionHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var pos model.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.dispatch(r.Context(), pos)
	w.WriteHeader(http.StatusAccepted)
}

// HandleWebsocket handles GET /ws/position: a persistent feed of JSON
// fixes, one per message.
func (h *PositionHandler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("position feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("position feed opened", "remote", r.RemoteAddr)

	for {
		var pos model.Position
		if err := conn.ReadJSON(&pos); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("position feed closed unexpectedly", "error", err)
			} else {
				slog.Info("position feed closed", "remote", r.RemoteAddr)
			}
			return
		}
		h.dispatch(r.Context(), pos)
	}
}
