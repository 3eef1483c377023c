// Package api exposes the HTTP surface of the guide: tour control,
// destination management, the position feed and a status endpoint for the
// companion app.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"walktale/pkg/version"
)

// NewServer wires all handlers into an http.Server. shutdown is invoked when
// a graceful shutdown is requested over the API.
func NewServer(addr string, tour *TourHandler, pos *PositionHandler, status *StatusHandler, prefs *PrefsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	mux.HandleFunc("POST /api/tour/start", tour.HandleStart)
	mux.HandleFunc("POST /api/tour/stop", tour.HandleStop)
	mux.HandleFunc("POST /api/tour/ask", tour.HandleAsk)

	mux.HandleFunc("POST /api/destination", tour.HandleSetDestination)
	mux.HandleFunc("DELETE /api/destination", tour.HandleClearDestination)

	mux.HandleFunc("POST /api/position", pos.HandlePost)
	mux.HandleFunc("GET /ws/position", pos.HandleWebsocket)

	mux.HandleFunc("GET /api/status", status.Handle)

	mux.HandleFunc("GET /api/language", prefs.HandleGet)
	mux.HandleFunc("POST /api/language", prefs.HandleSet)

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("graceful shutdown requested via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("failed to write shutdown response", "error", err)
		}
		// Let the response flush before tearing the server down.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("failed to write version response", "error", err)
	}
}
