// mockwalk simulates a pedestrian and streams GPS fixes to a running
// walktale server over its position websocket. Useful for exercising the
// guide without leaving the desk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"walktale/pkg/geo"
	"walktale/pkg/model"
	"walktale/pkg/sampler"
)

var (
	server   = flag.String("server", "ws://127.0.0.1:8421/ws/position", "Walktale position websocket")
	lat      = flag.Float64("lat", 40.4169, "Start latitude")
	lon      = flag.Float64("lon", -3.7035, "Start longitude")
	speed    = flag.Float64("speed", 1.4, "Walking speed in m/s")
	interval = flag.Duration("interval", time.Second, "Fix interval")
	jitter   = flag.Float64("jitter", 3, "GPS jitter in meters")
	routeArg = flag.String("route", "", "Route to follow: lat,lon;lat,lon;...")
)

func main() {
	flag.Parse()

	route, err := parseRoute(*routeArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad route: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, route); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "mockwalk failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, route []geo.Point) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *server, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", *server, err)
	}
	defer conn.Close()
	fmt.Println("Connected to", *server)

	start := geo.Point{Lat: *lat, Lon: *lon}
	if len(route) > 0 {
		start = route[0]
	}
	walker := sampler.NewWalker(sampler.WalkerConfig{
		StartLat: start.Lat,
		StartLon: start.Lon,
		SpeedMS:  *speed,
		Interval: *interval,
		JitterM:  *jitter,
		Route:    route,
	})

	walkCtx, stop := context.WithCancel(ctx)
	defer stop()

	count := 0
	var writeErr error
	err = walker.Run(walkCtx, func(pos model.Position) {
		if werr := conn.WriteJSON(pos); werr != nil {
			writeErr = werr
			stop()
			return
		}
		count++
		if count%10 == 0 {
			fmt.Printf("sent %d fixes, now at %.5f,%.5f\n", count, pos.Lat, pos.Lon)
		}
	})
	if writeErr != nil {
		return fmt.Errorf("sending fix: %w", writeErr)
	}
	if err == nil {
		fmt.Println("Route complete after", count, "fixes")
	}
	return err
}

func parseRoute(s string) ([]geo.Point, error) {
	if s == "" {
		return nil, nil
	}
	var route []geo.Point
	for _, pair := range strings.Split(s, ";") {
		parts := strings.Split(strings.TrimSpace(pair), ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected lat,lon but got %q", pair)
		}
		plat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, err
		}
		plon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, err
		}
		route = append(route, geo.Point{Lat: plat, Lon: plon})
	}
	return route, nil
}
