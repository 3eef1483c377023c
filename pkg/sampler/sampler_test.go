package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walktale/pkg/geo"
	"walktale/pkg/model"
)

func TestWalkerEmitsFixes(t *testing.T) {
	w := NewWalker(WalkerConfig{
		StartLat: 40.4169,
		StartLon: -3.7035,
		SpeedMS:  1.4,
		Interval: 5 * time.Millisecond,
	})

	var mu sync.Mutex
	var fixes []model.Position
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(p model.Position) {
			mu.Lock()
			fixes = append(fixes, p)
			mu.Unlock()
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(fixes), 5, "expected a stream of fixes")
	for _, f := range fixes {
		assert.True(t, f.HasHeading(), "walker fix missing heading")
		assert.Equal(t, 1.4, f.SpeedMS)
		assert.Equal(t, 8.0, f.AccuracyM)
	}
	// Each 5ms step at 1.4 m/s covers 7mm; the whole run stays local.
	first, last := fixes[0], fixes[len(fixes)-1]
	d := geo.Distance(geo.Point{Lat: first.Lat, Lon: first.Lon}, geo.Point{Lat: last.Lat, Lon: last.Lon})
	assert.Less(t, d, 10.0, "walker teleported")
}

func TestWalkerFollowsRouteToEnd(t *testing.T) {
	route := []geo.Point{
		{Lat: 40.4169, Lon: -3.7035},
		{Lat: 40.41692, Lon: -3.7035}, // ~2m total
	}
	w := NewWalker(WalkerConfig{
		StartLat: route[0].Lat,
		StartLon: route[0].Lon,
		SpeedMS:  10, // hurried walker keeps the test quick
		Interval: 5 * time.Millisecond,
		Route:    route,
	})

	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), func(model.Position) {})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("walker never reached the end of a 2m route")
	}
}

func TestWebsocketSourceStreamsFixes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			p := model.NewPosition(40.4169+float64(i)*0.0001, -3.7035, 10, time.Now())
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewWebsocket(url)
	require.Equal(t, "websocket", src.Name())

	var fixes []model.Position
	err := src.Run(context.Background(), func(p model.Position) {
		fixes = append(fixes, p)
	})
	require.NoError(t, err)
	require.Len(t, fixes, 3)
	assert.Greater(t, fixes[2].Lat, fixes[0].Lat, "fixes out of order")
}

func TestWebsocketSourceDialFailure(t *testing.T) {
	src := NewWebsocket("ws://127.0.0.1:1/ws/position")
	err := src.Run(context.Background(), func(model.Position) {})
	require.Error(t, err)
}
