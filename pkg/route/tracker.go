// Package route tracks progress along a walking route: remaining distance,
// deviation detection with automatic rerouting, and idempotent arrival.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"walktale/pkg/config"
	"walktale/pkg/geo"
	"walktale/pkg/model"
	"walktale/pkg/routing"
)

// State is the tracker's position relative to the active route.
type State int

const (
	StateNoDestination State = iota
	StateRouting
	StateOnRoute
	StateDeviated
	StateArrived
)

func (s State) String() string {
	switch s {
	case StateRouting:
		return "routing"
	case StateOnRoute:
		return "on_route"
	case StateDeviated:
		return "deviated"
	case StateArrived:
		return "arrived"
	default:
		return "no_destination"
	}
}

// Status is a snapshot of route progress.
type Status struct {
	State           State        `json:"state"`
	DestinationName string       `json:"destination_name,omitempty"`
	RemainingM      float64      `json:"remaining_m"`
	ETASeconds      float64      `json:"eta_seconds"`
	Route           *model.Route `json:"route,omitempty"`
}

// Tracker follows the walker along the active route.
type Tracker struct {
	provider routing.Provider
	cfg      config.RouteConfig

	mu              sync.Mutex
	state           State
	route           *model.Route
	destinationName string
	arrivalFired    bool
	rerouting       bool

	onArrival   func(pos model.Position)
	onDeviation func(pos model.Position)
}

// New creates a Tracker routing through provider.
func New(provider routing.Provider, cfg config.RouteConfig) *Tracker {
	return &Tracker{provider: provider, cfg: cfg}
}

// SetCallbacks registers arrival and deviation hooks. Callbacks run outside
// the tracker lock, on the caller's goroutine.
func (t *Tracker) SetCallbacks(onArrival, onDeviation func(pos model.Position)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onArrival = onArrival
	t.onDeviation = onDeviation
}

// SetDestination computes a route from start to dest and begins tracking it.
func (t *Tracker) SetDestination(ctx context.Context, start, dest model.Position, name string) (*model.Route, error) {
	t.mu.Lock()
	t.state = StateRouting
	t.destinationName = name
	t.route = nil
	t.arrivalFired = false
	t.mu.Unlock()

	route, err := t.provider.Route(ctx, start, dest)
	if err != nil {
		t.mu.Lock()
		t.state = StateNoDestination
		t.mu.Unlock()
		return nil, fmt.Errorf("routing to destination failed: %w", err)
	}

	t.mu.Lock()
	t.route = route
	t.state = StateOnRoute
	t.mu.Unlock()

	slog.Info("Route set", "destination", name, "summary", routing.Describe(route))
	return route, nil
}

// ClearDestination drops the active route.
func (t *Tracker) ClearDestination() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateNoDestination
	t.route = nil
	t.destinationName = ""
	t.arrivalFired = false
}

// OnPosition advances the tracker with a new fix. Arrival wins over
// deviation; both callbacks fire at most once per episode.
func (t *Tracker) OnPosition(ctx context.Context, pos model.Position) {
	t.mu.Lock()
	if t.route == nil || t.state == StateArrived {
		t.mu.Unlock()
		return
	}
	route := t.route

	p := geo.Point{Lat: pos.Lat, Lon: pos.Lon}
	destDist := geo.Distance(p, geo.Point{Lat: route.Destination.Lat, Lon: route.Destination.Lon})

	if destDist <= t.cfg.ArrivalThresholdM {
		t.state = StateArrived
		fireArrival := !t.arrivalFired
		t.arrivalFired = true
		cb := t.onArrival
		destName := t.destinationName
		t.mu.Unlock()

		if fireArrival {
			slog.Info("Arrived at destination", "destination", destName, "distance_m", destDist)
			if cb != nil {
				cb(pos)
			}
		}
		return
	}

	hit := geo.NearestPointOnPolyline(p, routePolyline(route))
	if hit.Distance <= t.cfg.DeviationThresholdM {
		if t.state == StateDeviated {
			slog.Info("Back on route", "distance_m", hit.Distance)
		}
		t.state = StateOnRoute
		t.mu.Unlock()
		return
	}

	// Off route.
	firstDeviation := t.state != StateDeviated
	t.state = StateDeviated
	shouldReroute := !t.rerouting
	if shouldReroute {
		t.rerouting = true
	}
	cb := t.onDeviation
	dest := route.Destination
	t.mu.Unlock()

	if firstDeviation {
		slog.Info("Deviated from route", "distance_m", hit.Distance)
		if cb != nil {
			cb(pos)
		}
	}

	if shouldReroute {
		t.reroute(ctx, pos, dest)
	}
}

// reroute replaces the active route from the current position. At most one
// reroute is in flight at a time; a failed attempt is retried on the next
// deviated fix.
func (t *Tracker) reroute(ctx context.Context, pos, dest model.Position) {
	defer func() {
		t.mu.Lock()
		t.rerouting = false
		t.mu.Unlock()
	}()

	route, err := t.provider.Route(ctx, pos, dest)
	if err != nil {
		slog.Warn("Reroute failed, keeping stale route", "error", err)
		return
	}

	t.mu.Lock()
	if t.route == nil {
		// Destination cleared while rerouting.
		t.mu.Unlock()
		return
	}
	t.route = route
	t.state = StateOnRoute
	t.mu.Unlock()

	slog.Info("Rerouted", "summary", routing.Describe(route))
}

// Status reports current progress. pos is the latest fix; pass the zero
// value when none is known yet.
func (t *Tracker) Status(pos model.Position) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{State: t.state, DestinationName: t.destinationName, Route: t.route}
	if t.route == nil || t.state == StateArrived {
		return st
	}

	p := geo.Point{Lat: pos.Lat, Lon: pos.Lon}
	st.RemainingM = geo.RemainingOnPolyline(p, routePolyline(t.route))

	speed := t.cfg.WalkSpeedMS
	if speed <= 0 {
		speed = 1.4
	}
	st.ETASeconds = st.RemainingM / speed
	return st
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// HasDestination reports whether a route is active.
func (t *Tracker) HasDestination() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.route != nil
}

func routePolyline(r *model.Route) []geo.Point {
	pts := make([]geo.Point, len(r.Polyline))
	for i, p := range r.Polyline {
		pts[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return pts
}
