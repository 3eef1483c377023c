package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"walktale/pkg/model"
)

// WebsocketSource reads GPS fixes from a websocket endpoint, one JSON
// position per message. Used when a companion device serves the feed.
type WebsocketSource struct {
	url    string
	dialer *websocket.Dialer
}

func NewWebsocket(url string) *WebsocketSource {
	return &WebsocketSource{url: url, dialer: websocket.DefaultDialer}
}

func (s *WebsocketSource) Name() string { return "websocket" }

// Run connects and streams fixes until the peer closes or ctx is cancelled.
func (s *WebsocketSource) Run(ctx context.Context, sink Sink) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.url, err)
	}
	defer conn.Close()
	slog.Info("position feed connected", "url", s.url)

	// Unblock ReadJSON when the context goes away.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var pos model.Position
		if err := conn.ReadJSON(&pos); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading position feed: %w", err)
		}
		if pos.Timestamp.IsZero() {
			pos.Timestamp = time.Now()
		}
		sink(pos)
	}
}
